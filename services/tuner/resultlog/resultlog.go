// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resultlog persists test records as CSV so that interrupted
// searches can resume and results can be inspected with ordinary
// spreadsheet tooling.
//
// The layout is one row per evaluated configuration: a column per
// variable in tree order, one column per repetition score, and the
// aggregate. Variables inactive in a configuration are empty cells,
// and failed configurations carry "FAILED: <reason>" in the aggregate
// column. Rows are flushed as they are appended, so the log is
// current up to the last finished evaluation even if the process
// dies.
package resultlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// failurePrefix marks a failed configuration in the aggregate column.
// The suffix is the machine-stable reason string from the evaluator.
const failurePrefix = "FAILED: "

// aggregateColumn is the final header field.
const aggregateColumn = "aggregate"

// Columns returns the header for a log over the given variables and
// repetition count: variable names in tree order, score_1..score_N,
// then the aggregate.
func Columns(names []string, repeat int) []string {
	if repeat < 1 {
		repeat = 1
	}
	cols := make([]string, 0, len(names)+repeat+1)
	cols = append(cols, names...)
	for i := 1; i <= repeat; i++ {
		cols = append(cols, fmt.Sprintf("score_%d", i))
	}
	return append(cols, aggregateColumn)
}

// ==============================================================================
// WRITER
// ==============================================================================

// Writer appends test records to a CSV log. It implements
// evaluator.RecordSink, so it can be attached with
// evaluator.WithSink and receive every record as it is produced.
//
// A Writer owns its file handle until Close. Open a prior run's log
// with Read; never point a Writer at it.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	path   string
	names  []string
	repeat int
}

var _ evaluator.RecordSink = (*Writer)(nil)

// Create opens path for writing, truncating any existing file, and
// writes the header row.
//
// Inputs:
//
//	path - Log file location. Parent directories must exist.
//	names - Variable names in tree order; these become columns.
//	repeat - Repetitions per configuration; one score column each.
//
// Outputs:
//
//	*Writer - Open log ready for Append.
//	error - Non-nil if the file cannot be created or the header
//	        cannot be written.
func Create(path string, names []string, repeat int) (*Writer, error) {
	if repeat < 1 {
		repeat = 1
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns(names, repeat)); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing result log header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing result log header: %w", err)
	}

	lw := &Writer{f: f, w: w, path: path, repeat: repeat}
	lw.names = append(lw.names, names...)
	return lw, nil
}

// Append writes one record and flushes it to disk.
func (lw *Writer) Append(rec evaluator.TestRecord) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	row := make([]string, 0, len(lw.names)+lw.repeat+1)
	for _, name := range lw.names {
		value, _ := rec.Valuation.Get(name)
		row = append(row, value)
	}
	for i := 0; i < lw.repeat; i++ {
		if i < len(rec.RawScores) {
			row = append(row, formatScore(rec.RawScores[i]))
		} else {
			row = append(row, "")
		}
	}
	if rec.Success() {
		row = append(row, formatScore(rec.Aggregate))
	} else {
		row = append(row, failurePrefix+rec.Reason)
	}

	if err := lw.w.Write(row); err != nil {
		return fmt.Errorf("appending to result log: %w", err)
	}
	lw.w.Flush()
	if err := lw.w.Error(); err != nil {
		return fmt.Errorf("flushing result log: %w", err)
	}
	return nil
}

// Path returns the log file location.
func (lw *Writer) Path() string {
	return lw.path
}

// Close flushes and releases the file.
func (lw *Writer) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.w.Flush()
	werr := lw.w.Error()
	cerr := lw.f.Close()
	if werr != nil {
		return fmt.Errorf("closing result log: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("closing result log: %w", cerr)
	}
	return nil
}

// ==============================================================================
// READER
// ==============================================================================

// Read loads a prior run's log for resuming.
//
// Description:
//
//	The file header must match Columns(names, repeat) exactly;
//	anything else means the tuning setup changed since the log was
//	written, and resuming would corrupt the search. Records are
//	assigned IDs by row order starting at 1. Timestamps are not
//	persisted and come back zero.
//
// Inputs:
//
//	path - Log file from a previous run.
//	names - Variable names of the current setup, in tree order.
//	repeat - Current repetitions per configuration.
//
// Outputs:
//
//	[]evaluator.TestRecord - Records in file order.
//	error - A *HeaderError or *RowError describing the first problem.
func Read(path string, names []string, repeat int) ([]evaluator.TestRecord, error) {
	if repeat < 1 {
		repeat = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	want := Columns(names, repeat)

	header, err := r.Read()
	if err == io.EOF {
		return nil, &HeaderError{Path: path, Want: want}
	}
	if err != nil {
		return nil, fmt.Errorf("reading result log header: %w", err)
	}
	if !equalHeader(header, want) {
		return nil, &HeaderError{Path: path, Got: header, Want: want}
	}

	var recs []evaluator.TestRecord
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &RowError{Path: path, Line: line, Detail: err.Error()}
		}

		rec, err := parseRow(row, names, repeat)
		if err != nil {
			return nil, &RowError{Path: path, Line: line, Detail: err.Error()}
		}
		rec.ID = len(recs) + 1
		recs = append(recs, rec)
	}
	return recs, nil
}

// parseRow decodes one data row. The csv reader has already enforced
// the field count against the header.
func parseRow(row, names []string, repeat int) (evaluator.TestRecord, error) {
	var rec evaluator.TestRecord

	pairs := make([]space.Pair, 0, len(names))
	for i, name := range names {
		if row[i] == "" {
			continue
		}
		pairs = append(pairs, space.Pair{Name: name, Value: row[i]})
	}
	rec.Valuation = space.NewValuation(pairs...)

	for i := 0; i < repeat; i++ {
		cell := row[len(names)+i]
		if cell == "" {
			continue
		}
		score, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return rec, fmt.Errorf("score_%d %q is not a number", i+1, cell)
		}
		rec.RawScores = append(rec.RawScores, score)
	}

	agg := row[len(names)+repeat]
	if reason, ok := strings.CutPrefix(agg, failurePrefix); ok {
		rec.Outcome = evaluator.OutcomeFailure
		rec.Reason = reason
		return rec, nil
	}
	score, err := strconv.ParseFloat(agg, 64)
	if err != nil {
		return rec, fmt.Errorf("aggregate %q is not a number", agg)
	}
	rec.Outcome = evaluator.OutcomeSuccess
	rec.Aggregate = score
	return rec, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func equalHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
