// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/omariosc/autotuning-cuda/pkg/console"
	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// ==== HELPERS ====

func val(pairs ...string) space.Valuation {
	ps := make([]space.Pair, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ps = append(ps, space.Pair{Name: pairs[i], Value: pairs[i+1]})
	}
	return space.NewValuation(ps...)
}

func renderSummary(sum *optimizer.Summary, names []string, failures []evaluator.TestRecord) string {
	var buf bytes.Buffer
	printRunSummary(console.New(&buf), sum, names, failures)
	return buf.String()
}

// ==== RUN SUMMARY TESTS ====

func TestPrintRunSummary_Best(t *testing.T) {
	sum := &optimizer.Summary{
		State:         optimizer.StateSucceeded,
		Evaluated:     6,
		TestsRequired: 8,
		Failed:        1,
		Executions:    12,
		Elapsed:       90 * time.Second,
		HasBest:       true,
		Best: evaluator.TestRecord{
			ID:        3,
			Valuation: val("method", "tiled", "threads", "128"),
			Aggregate: 3.5,
			Outcome:   evaluator.OutcomeSuccess,
		},
	}

	out := renderSummary(sum, []string{"method", "tile", "threads"}, nil)

	for _, want := range []string{
		"Finished: succeeded",
		"Tested 6 of 8 configurations in 1m30s (12 command launches, 1 failed)",
		"Best score: 3.5",
		"Best configuration:",
		"  method = tiled",
		"  threads = 128",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// tile is inactive in the best configuration and must not appear.
	if strings.Contains(out, "tile =") {
		t.Errorf("output lists inactive variable tile:\n%s", out)
	}
	if strings.Contains(out, "Failures:") {
		t.Errorf("output has a failure section without failures:\n%s", out)
	}
}

func TestPrintRunSummary_NoBest(t *testing.T) {
	sum := &optimizer.Summary{
		State:         optimizer.StateInsufficientResults,
		Evaluated:     2,
		TestsRequired: 4,
		Failed:        2,
	}

	out := renderSummary(sum, []string{"threads"}, nil)

	if !strings.Contains(out, "No configuration produced a valid score") {
		t.Errorf("output missing no-best line:\n%s", out)
	}
	if strings.Contains(out, "Best score") {
		t.Errorf("output has a best score without a best:\n%s", out)
	}
}

func TestPrintRunSummary_FailureListCapped(t *testing.T) {
	names := []string{"threads"}
	failures := make([]evaluator.TestRecord, 0, maxFailureLines+2)
	for i := 0; i < maxFailureLines+2; i++ {
		failures = append(failures, evaluator.TestRecord{
			ID:        i + 1,
			Valuation: val("threads", "64"),
			Outcome:   evaluator.OutcomeFailure,
			Reason:    evaluator.ReasonCompileFailed,
		})
	}
	sum := &optimizer.Summary{
		State:         optimizer.StateInsufficientResults,
		Evaluated:     len(failures),
		TestsRequired: len(failures),
		Failed:        len(failures),
	}

	out := renderSummary(sum, names, failures)

	if !strings.Contains(out, "Failures:") {
		t.Fatalf("output missing failure section:\n%s", out)
	}
	if got := strings.Count(out, evaluator.ReasonCompileFailed+": threads=64"); got != maxFailureLines {
		t.Errorf("output lists %d failures, want %d:\n%s", got, maxFailureLines, out)
	}
	if !strings.Contains(out, "... and 2 more (see the result log)") {
		t.Errorf("output missing the overflow line:\n%s", out)
	}
}

// ==== IMPORTANCE TESTS ====

func TestPrintImportance(t *testing.T) {
	report := &optimizer.ImportanceReport{
		NewEvaluations: 3,
		Variables: []optimizer.VariableImportance{
			{
				Name:     "threads",
				Baseline: "64",
				Spread:   0.5,
				Results: []optimizer.ValueResult{
					{Value: "32", Resolved: true, Record: evaluator.TestRecord{
						Aggregate: 2.0, Outcome: evaluator.OutcomeSuccess}},
					{Value: "64", Resolved: true, Reused: true, Record: evaluator.TestRecord{
						Aggregate: 1.5, Outcome: evaluator.OutcomeSuccess}},
					{Value: "128", Resolved: true, Record: evaluator.TestRecord{
						Outcome: evaluator.OutcomeFailure, Reason: evaluator.ReasonCompileFailed}},
					{Value: "256", Resolved: false},
				},
			},
		},
	}

	var buf bytes.Buffer
	printImportance(console.New(&buf), report, "out/sweep.csv")
	out := buf.String()

	for _, want := range []string{
		"Sweep ran 3 additional test(s)",
		"  threads (baseline 64): spread 0.5",
		"32=2  64=1.5  128=failed  256=?",
		"Sweep results written to out/sweep.csv",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintImportance_NoneRequired(t *testing.T) {
	report := &optimizer.ImportanceReport{
		Variables: []optimizer.VariableImportance{
			{Name: "threads", Baseline: "64"},
		},
	}

	var buf bytes.Buffer
	printImportance(console.New(&buf), report, "out/sweep.csv")

	if !strings.Contains(buf.String(), "no additional tests were required") {
		t.Errorf("output missing the reuse line:\n%s", buf.String())
	}
}

// ==== FORMATTING TESTS ====

func TestFormatValuation(t *testing.T) {
	v := val("threads", "128", "method", "tiled")

	// names gives the order; inactive variables are skipped.
	got := formatValuation(v, []string{"method", "tile", "threads"})
	if got != "method=tiled threads=128" {
		t.Errorf("formatValuation() = %q", got)
	}

	if got := formatValuation(space.NewValuation(), []string{"threads"}); got != "" {
		t.Errorf("formatValuation(empty) = %q, want empty", got)
	}
}

func TestFormatScore(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3.5, "3.5"},
		{42, "42"},
		{0.000125, "0.000125"},
		{1250000, "1.25e+06"},
	}
	for _, tc := range cases {
		if got := formatScore(tc.in); got != tc.want {
			t.Errorf("formatScore(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
