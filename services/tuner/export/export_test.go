// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// ==== MOCK IMPLEMENTATIONS ====

// captureWriteAPI records every point handed to WritePoint.
type captureWriteAPI struct {
	points []*write.Point
	err    error
}

func (c *captureWriteAPI) WriteRecord(_ context.Context, _ ...string) error { return c.err }

func (c *captureWriteAPI) WritePoint(_ context.Context, points ...*write.Point) error {
	if c.err != nil {
		return c.err
	}
	c.points = append(c.points, points...)
	return nil
}

func (c *captureWriteAPI) EnableBatching() {}

func (c *captureWriteAPI) Flush(_ context.Context) error { return nil }

// fakeStream replays prepared flux records.
type fakeStream struct {
	records []*query.FluxRecord
	pos     int
	err     error
}

func (s *fakeStream) Next() bool {
	if s.pos >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *fakeStream) Record() *query.FluxRecord { return s.records[s.pos-1] }

func (s *fakeStream) Err() error { return s.err }

func val(pairs ...string) space.Valuation {
	ps := make([]space.Pair, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ps = append(ps, space.Pair{Name: pairs[i], Value: pairs[i+1]})
	}
	return space.NewValuation(ps...)
}

// ==== TESTS ====

func TestConfig_Validate(t *testing.T) {
	full := Config{URL: "http://localhost:8086", Token: "t", Org: "o", Bucket: "b"}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"complete", func(*Config) {}, nil},
		{"no url", func(c *Config) { c.URL = "" }, ErrMissingURL},
		{"no token", func(c *Config) { c.Token = "" }, ErrMissingToken},
		{"no org", func(c *Config) { c.Org = "" }, ErrMissingOrg},
		{"no bucket", func(c *Config) { c.Bucket = "" }, ErrMissingBucket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPoints_TagsAndFields(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recs := []evaluator.TestRecord{
		{
			ID:        3,
			Valuation: val("threads", "64", "blocks", "16"),
			RawScores: []float64{2.0, 3.0},
			Aggregate: 2.5,
			Outcome:   evaluator.OutcomeSuccess,
			Duration:  1500 * time.Millisecond,
			Timestamp: ts,
		},
		{
			ID:        4,
			Valuation: val("threads", "128"),
			Outcome:   evaluator.OutcomeFailure,
			Reason:    "compile failed",
		},
	}

	points := Points("run-7", recs)
	if len(points) != 1 {
		t.Fatalf("Points() = %d points, want 1 (failures skipped)", len(points))
	}
	p := points[0]

	if p.Name() != Measurement {
		t.Errorf("measurement = %q, want %q", p.Name(), Measurement)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("time = %v, want %v", p.Time(), ts)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["run_id"] != "run-7" || tags["threads"] != "64" || tags["blocks"] != "16" {
		t.Errorf("tags = %v, want run_id/threads/blocks", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["aggregate"] != 2.5 {
		t.Errorf("aggregate field = %v, want 2.5", fields["aggregate"])
	}
	if fields["score_1"] != 2.0 || fields["score_2"] != 3.0 {
		t.Errorf("score fields = %v/%v, want 2.0/3.0", fields["score_1"], fields["score_2"])
	}
	if fields["test_id"] != int64(3) {
		t.Errorf("test_id field = %v, want 3", fields["test_id"])
	}
	if fields["duration_s"] != 1.5 {
		t.Errorf("duration_s field = %v, want 1.5", fields["duration_s"])
	}
}

func TestWriteRun(t *testing.T) {
	capture := &captureWriteAPI{}
	c := &Client{
		cfg:    Config{Bucket: "tuning"},
		write:  capture,
		logger: slog.Default(),
	}

	recs := []evaluator.TestRecord{
		{ID: 1, Valuation: val("threads", "32"), Aggregate: 1.0, Outcome: evaluator.OutcomeSuccess},
		{ID: 2, Valuation: val("threads", "64"), Aggregate: 2.0, Outcome: evaluator.OutcomeSuccess},
		{ID: 3, Valuation: val("threads", "128"), Outcome: evaluator.OutcomeFailure, Reason: "exit 1"},
	}

	n, err := c.WriteRun(context.Background(), "run-1", recs)
	if err != nil {
		t.Fatalf("WriteRun() error = %v", err)
	}
	if n != 2 {
		t.Errorf("WriteRun() = %d, want 2", n)
	}
	if len(capture.points) != 2 {
		t.Errorf("wrote %d points, want 2", len(capture.points))
	}
}

func TestWriteRun_RequiresRunID(t *testing.T) {
	c := &Client{write: &captureWriteAPI{}, logger: slog.Default()}
	_, err := c.WriteRun(context.Background(), "", nil)
	if !errors.Is(err, ErrMissingRunID) {
		t.Errorf("WriteRun() error = %v, want ErrMissingRunID", err)
	}
}

func TestWriteRun_RejectsUnsafeRunID(t *testing.T) {
	capture := &captureWriteAPI{}
	c := &Client{write: capture, logger: slog.Default()}

	_, err := c.WriteRun(context.Background(), `run") |> drop()`, nil)
	if err == nil {
		t.Fatal("WriteRun() should reject a run id with Flux metacharacters")
	}
	if len(capture.points) != 0 {
		t.Errorf("wrote %d points for a rejected run id", len(capture.points))
	}
}

func TestWriteRun_NothingToExport(t *testing.T) {
	capture := &captureWriteAPI{}
	c := &Client{write: capture, logger: slog.Default()}

	recs := []evaluator.TestRecord{
		{ID: 1, Outcome: evaluator.OutcomeFailure, Reason: "compile failed"},
	}
	n, err := c.WriteRun(context.Background(), "run-1", recs)
	if err != nil {
		t.Fatalf("WriteRun() error = %v", err)
	}
	if n != 0 || len(capture.points) != 0 {
		t.Errorf("WriteRun() = %d points (%d sent), want 0", n, len(capture.points))
	}
}

func TestWriteRun_PropagatesError(t *testing.T) {
	sinkErr := errors.New("influx unavailable")
	c := &Client{write: &captureWriteAPI{err: sinkErr}, logger: slog.Default()}

	recs := []evaluator.TestRecord{
		{ID: 1, Valuation: val("threads", "32"), Aggregate: 1.0, Outcome: evaluator.OutcomeSuccess},
	}
	_, err := c.WriteRun(context.Background(), "run-1", recs)
	if !errors.Is(err, sinkErr) {
		t.Errorf("WriteRun() error = %v, want wrapped %v", err, sinkErr)
	}
}

func TestFluxQuery(t *testing.T) {
	q := fluxQuery("tuning", "run-42")

	for _, want := range []string{
		`from(bucket: "tuning")`,
		`"_measurement" == "tuning_result"`,
		`"run_id"] == "run-42"`,
		"pivot(",
		`sort(columns: ["_time"])`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestQueryRun_RejectsUnsafeRunID(t *testing.T) {
	// Validation fires before the query API is touched.
	c := &Client{logger: slog.Default()}
	_, err := c.QueryRun(context.Background(), "../other-run", nil, io.Discard)
	if err == nil {
		t.Fatal("QueryRun() should reject a run id with path metacharacters")
	}
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stream := &fakeStream{
		records: []*query.FluxRecord{
			query.NewFluxRecord(0, map[string]interface{}{
				"_time":     ts,
				"threads":   "64",
				"blocks":    "16",
				"aggregate": 2.5,
			}),
			query.NewFluxRecord(0, map[string]interface{}{
				"_time":     ts.Add(time.Minute),
				"threads":   "128",
				"aggregate": 4.0,
			}),
		},
	}

	var sb strings.Builder
	rows, err := writeCSV(stream, []string{"threads", "blocks"}, &sb)
	if err != nil {
		t.Fatalf("writeCSV() error = %v", err)
	}
	if rows != 2 {
		t.Errorf("rows = %d, want 2", rows)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output has %d lines, want header + 2 rows:\n%s", len(lines), sb.String())
	}
	if lines[0] != "time,threads,blocks,aggregate" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2025-06-01T12:00:00Z,64,16,2.5" {
		t.Errorf("row 1 = %q", lines[1])
	}
	// blocks was not tagged on the second point, so the cell is empty.
	if lines[2] != "2025-06-01T12:01:00Z,128,,4" {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestWriteCSV_StreamError(t *testing.T) {
	streamErr := errors.New("query interrupted")
	stream := &fakeStream{err: streamErr}

	var sb strings.Builder
	_, err := writeCSV(stream, []string{"threads"}, &sb)
	if !errors.Is(err, streamErr) {
		t.Errorf("writeCSV() error = %v, want wrapped %v", err, streamErr)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingURL) {
		t.Errorf("New() error = %v, want ErrMissingURL", err)
	}
}
