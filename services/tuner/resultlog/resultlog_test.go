// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

func vl(pairs ...string) space.Valuation {
	ps := make([]space.Pair, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ps = append(ps, space.Pair{Name: pairs[i], Value: pairs[i+1]})
	}
	return space.NewValuation(ps...)
}

func TestColumns(t *testing.T) {
	got := Columns([]string{"method", "threads"}, 3)
	want := []string{"method", "threads", "score_1", "score_2", "score_3", "aggregate"}
	if len(got) != len(want) {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Columns()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	names := []string{"method", "tile", "threads"}

	w, err := Create(path, names, 2)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	recs := []evaluator.TestRecord{
		{
			ID:        1,
			Valuation: vl("method", "tiled", "tile", "16", "threads", "64"),
			RawScores: []float64{12.5, 13},
			Aggregate: 12.75,
			Outcome:   evaluator.OutcomeSuccess,
		},
		{
			// tile inactive for this configuration
			ID:        2,
			Valuation: vl("method", "flat", "threads", "32"),
			RawScores: []float64{9},
			Aggregate: 9,
			Outcome:   evaluator.OutcomeSuccess,
		},
		{
			ID:        3,
			Valuation: vl("method", "tiled", "tile", "8", "threads", "32"),
			Outcome:   evaluator.OutcomeFailure,
			Reason:    evaluator.ReasonCompileFailed,
		},
	}
	for _, rec := range recs {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := Read(path, names, 2)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Read() returned %d records, want 3", len(got))
	}

	for i, rec := range got {
		if rec.ID != i+1 {
			t.Errorf("record %d: ID = %d, IDs must follow row order", i, rec.ID)
		}
		if !rec.Valuation.Equal(recs[i].Valuation) {
			t.Errorf("record %d: valuation = %s, want %s", i, rec.Valuation, recs[i].Valuation)
		}
	}

	if got[0].Aggregate != 12.75 {
		t.Errorf("record 0: Aggregate = %v, want 12.75", got[0].Aggregate)
	}
	if len(got[0].RawScores) != 2 || got[0].RawScores[0] != 12.5 || got[0].RawScores[1] != 13 {
		t.Errorf("record 0: RawScores = %v, want [12.5 13]", got[0].RawScores)
	}

	if got[1].Valuation.Has("tile") {
		t.Error("record 1: inactive variable must stay absent after a round trip")
	}
	if len(got[1].RawScores) != 1 {
		t.Errorf("record 1: RawScores = %v, want one score", got[1].RawScores)
	}

	if got[2].Success() {
		t.Error("record 2: failure outcome lost in round trip")
	}
	if got[2].Reason != evaluator.ReasonCompileFailed {
		t.Errorf("record 2: Reason = %q, want %q", got[2].Reason, evaluator.ReasonCompileFailed)
	}
}

func TestWriter_FlushesPerRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := Create(path, []string{"x"}, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer w.Close()

	rec := evaluator.TestRecord{
		ID:        1,
		Valuation: vl("x", "1"),
		RawScores: []float64{5},
		Aggregate: 5,
		Outcome:   evaluator.OutcomeSuccess,
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Without closing the writer, the row must already be on disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file has %d lines before Close, want header and one row", len(lines))
	}
}

func TestWriter_FailureRowFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := Create(path, []string{"x"}, 2)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := evaluator.TestRecord{
		ID:        1,
		Valuation: vl("x", "1"),
		Outcome:   evaluator.OutcomeFailure,
		Reason:    evaluator.ReasonNoMeasurements,
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "FAILED: "+evaluator.ReasonNoMeasurements) {
		t.Errorf("log = %q, want a FAILED aggregate cell", string(data))
	}
}

func TestWriter_QuotesSpecialCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	names := []string{"flags"}

	w, err := Create(path, names, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec := evaluator.TestRecord{
		ID:        1,
		Valuation: vl("flags", `-O2, -use_fast_math`),
		RawScores: []float64{1},
		Aggregate: 1,
		Outcome:   evaluator.OutcomeSuccess,
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path, names, 1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	value, _ := got[0].Valuation.Get("flags")
	if value != `-O2, -use_fast_math` {
		t.Errorf("value = %q, comma did not survive the round trip", value)
	}
}

func TestRead_HeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := Create(path, []string{"threads"}, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		names  []string
		repeat int
	}{
		{"different variable", []string{"blocks"}, 1},
		{"extra variable", []string{"threads", "blocks"}, 1},
		{"different repeat", []string{"threads"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(path, tt.names, tt.repeat)
			if !errors.Is(err, ErrHeaderMismatch) {
				t.Fatalf("Read() error = %v, want ErrHeaderMismatch", err)
			}
			var herr *HeaderError
			if !errors.As(err, &herr) {
				t.Fatal("error should carry header details")
			}
		})
	}
}

func TestRead_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path, []string{"x"}, 1); !errors.Is(err, ErrHeaderMismatch) {
		t.Errorf("Read() error = %v, want ErrHeaderMismatch", err)
	}
}

func TestRead_MalformedRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad aggregate", "x,score_1,aggregate\n1,2.0,fast\n"},
		{"bad score", "x,score_1,aggregate\n1,two,2.0\n"},
		{"short row", "x,score_1,aggregate\n1,2.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.csv")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Read(path, []string{"x"}, 1)
			if !errors.Is(err, ErrMalformedRow) {
				t.Fatalf("Read() error = %v, want ErrMalformedRow", err)
			}
			var rerr *RowError
			if !errors.As(err, &rerr) {
				t.Fatal("error should carry the line number")
			}
			if rerr.Line != 2 {
				t.Errorf("Line = %d, want 2", rerr.Line)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.csv"), []string{"x"}, 1)
	if err == nil {
		t.Fatal("Read() of a missing file must fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read() error = %v, want wrapped os.ErrNotExist", err)
	}
}
