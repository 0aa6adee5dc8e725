// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export ships tuning results to InfluxDB and pulls them back
// out.
//
// Each successful evaluation becomes one point in the configured
// bucket: measurement tuning_result, the variable assignment and the
// run id as tags, the aggregate and per-repetition scores as fields.
// Tagging by assignment makes Flux dashboards trivial ("group by
// threads, plot aggregate") without parsing anything. The query path
// inverts the mapping and writes a CSV, so results collected from
// several machines can be compared with the same tooling as a local
// result log.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/omariosc/autotuning-cuda/pkg/validation"
	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
)

// Measurement is the InfluxDB measurement name for tuning results.
const Measurement = "tuning_result"

// runTag is the tag key carrying the run id.
const runTag = "run_id"

// aggregateField is the field key carrying the reduced score.
const aggregateField = "aggregate"

// ==============================================================================
// CONFIGURATION
// ==============================================================================

// Config holds the InfluxDB connection settings.
type Config struct {
	// URL is the InfluxDB endpoint, e.g. http://localhost:8086.
	URL string

	// Token is the API token.
	Token string

	// Org is the InfluxDB organization.
	Org string

	// Bucket receives the points.
	Bucket string
}

// Validate checks that the connection settings are complete.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.Org == "" {
		return ErrMissingOrg
	}
	if c.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}

// ==============================================================================
// CLIENT
// ==============================================================================

// recordStream is the part of the Flux result iterator the CSV
// conversion needs. *api.QueryTableResult satisfies it.
type recordStream interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
}

// Client writes and queries tuning results.
//
// Thread Safety: Safe for concurrent use; the underlying influx
// client is.
type Client struct {
	cfg    Config
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New connects to InfluxDB.
//
// Outputs:
//   - *Client: Ready to use. Caller must Close it.
//   - error: A configuration sentinel when settings are incomplete.
//     The connection itself is lazy; a wrong URL surfaces on first use.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	c := &Client{
		cfg:    cfg,
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "export"))
	return c, nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() {
	c.client.Close()
}

// WriteRun pushes the successful records of one run.
//
// Description:
//
//	Failures carry no score, so they are skipped and counted in the
//	log line instead of polluting the measurement.
//
// Outputs:
//   - int: Number of points written.
//   - error: ErrMissingRunID, an invalid run id, or the blocking
//     write failure.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) WriteRun(ctx context.Context, runID string, recs []evaluator.TestRecord) (int, error) {
	if runID == "" {
		return 0, ErrMissingRunID
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return 0, err
	}

	points := Points(runID, recs)
	if len(points) == 0 {
		c.logger.Info("nothing to export",
			slog.String("run_id", runID),
			slog.Int("records", len(recs)))
		return 0, nil
	}

	if err := c.write.WritePoint(ctx, points...); err != nil {
		return 0, fmt.Errorf("writing %d points for run %s: %w", len(points), runID, err)
	}

	c.logger.Info("run exported",
		slog.String("run_id", runID),
		slog.Int("points", len(points)),
		slog.Int("skipped_failures", len(recs)-len(points)))
	return len(points), nil
}

// Points converts successful records into influx points.
func Points(runID string, recs []evaluator.TestRecord) []*write.Point {
	points := make([]*write.Point, 0, len(recs))
	for _, rec := range recs {
		if !rec.Success() {
			continue
		}

		tags := map[string]string{runTag: runID}
		for _, pair := range rec.Valuation.Pairs() {
			tags[pair.Name] = pair.Value
		}

		fields := map[string]interface{}{
			aggregateField: rec.Aggregate,
			"test_id":      rec.ID,
			"duration_s":   rec.Duration.Seconds(),
		}
		for i, score := range rec.RawScores {
			fields["score_"+strconv.Itoa(i+1)] = score
		}

		ts := rec.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		points = append(points, influxdb2.NewPoint(Measurement, tags, fields, ts))
	}
	return points
}

// QueryRun pulls one run back out of InfluxDB as CSV.
//
// Description:
//
//	Runs a Flux query pivoted on field keys, then writes rows of
//	time, the given variable columns and the aggregate. Variables
//	inactive in a configuration come back as empty cells, same as
//	the local result log.
//
// Inputs:
//   - names: Variable columns, in result-log order.
//   - w: Destination for the CSV.
//
// Outputs:
//   - int: Number of rows written.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) QueryRun(ctx context.Context, runID string, names []string, w io.Writer) (int, error) {
	if runID == "" {
		return 0, ErrMissingRunID
	}
	// The id lands inside the Flux filter below.
	if err := validation.ValidateRunID(runID); err != nil {
		return 0, err
	}

	result, err := c.query.Query(ctx, fluxQuery(c.cfg.Bucket, runID))
	if err != nil {
		return 0, fmt.Errorf("querying run %s: %w", runID, err)
	}

	rows, err := writeCSV(result, names, w)
	if err != nil {
		return rows, err
	}
	c.logger.Info("run queried",
		slog.String("run_id", runID),
		slog.Int("rows", rows))
	return rows, nil
}

// fluxQuery builds the pivoted Flux query for one run.
func fluxQuery(bucket, runID string) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r["_measurement"] == %q)
  |> filter(fn: (r) => r[%q] == %q)
  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])
`, bucket, Measurement, runTag, runID)
}

// writeCSV converts a pivoted result stream into CSV rows.
func writeCSV(result recordStream, names []string, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(names)+2)
	header = append(header, "time")
	header = append(header, names...)
	header = append(header, aggregateField)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	rows := 0
	for result.Next() {
		r := result.Record()

		row := make([]string, 0, len(header))
		row = append(row, r.Time().UTC().Format(time.RFC3339))
		for _, name := range names {
			if v, ok := r.ValueByKey(name).(string); ok {
				row = append(row, v)
			} else {
				row = append(row, "")
			}
		}
		if agg, ok := r.ValueByKey(aggregateField).(float64); ok {
			row = append(row, strconv.FormatFloat(agg, 'g', -1, 64))
		} else {
			row = append(row, "")
		}

		if err := cw.Write(row); err != nil {
			return rows, fmt.Errorf("writing row: %w", err)
		}
		rows++
	}
	if err := result.Err(); err != nil {
		return rows, fmt.Errorf("reading query result: %w", err)
	}

	cw.Flush()
	return rows, cw.Error()
}
