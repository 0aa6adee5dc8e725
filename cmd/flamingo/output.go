// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/omariosc/autotuning-cuda/pkg/console"
	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// maxFailureLines bounds the failure list in the run summary; the
// full detail is always in the CSV log.
const maxFailureLines = 5

// printRunSummary renders the end-of-run report.
func printRunSummary(c *console.Console, sum *optimizer.Summary, names []string, failures []evaluator.TestRecord) {
	c.Printf("\nFinished: %s\n", sum.State)
	c.Printf("Tested %d of %d configurations in %s (%d command launches, %d failed)\n",
		sum.Evaluated, sum.TestsRequired, sum.Elapsed.Round(time.Millisecond),
		sum.Executions, sum.Failed)

	if !sum.HasBest {
		c.Printf("No configuration produced a valid score\n")
	} else {
		c.Printf("Best score: %s\n", formatScore(sum.Best.Aggregate))
		c.Printf("Best configuration:\n")
		for _, name := range names {
			if value, ok := sum.Best.Valuation.Get(name); ok {
				c.Printf("  %s = %s\n", name, value)
			}
		}
	}

	if len(failures) > 0 {
		c.Printf("Failures:\n")
		for i, rec := range failures {
			if i == maxFailureLines {
				c.Printf("  ... and %d more (see the result log)\n", len(failures)-maxFailureLines)
				break
			}
			c.Printf("  %s: %s\n", rec.Reason, formatValuation(rec.Valuation, names))
		}
	}
}

// printImportance renders the per-variable sensitivity report.
func printImportance(c *console.Console, report *optimizer.ImportanceReport, path string) {
	if report.NoneRequired() {
		c.Printf("Every sweep point was already measured; no additional tests were required\n")
	} else {
		c.Printf("Sweep ran %d additional test(s)\n", report.NewEvaluations)
	}

	for _, vi := range report.Variables {
		c.Printf("  %s (baseline %s): spread %s\n",
			vi.Name, vi.Baseline, formatScore(vi.Spread))
		parts := make([]string, 0, len(vi.Results))
		for _, r := range vi.Results {
			switch {
			case !r.Resolved:
				parts = append(parts, r.Value+"=?")
			case !r.Record.Success():
				parts = append(parts, r.Value+"=failed")
			default:
				parts = append(parts, r.Value+"="+formatScore(r.Record.Aggregate))
			}
		}
		c.Printf("    %s\n", strings.Join(parts, "  "))
	}
	c.Printf("Sweep results written to %s\n", path)
}

// formatValuation renders an assignment in tree order, inactive
// variables omitted.
func formatValuation(val space.Valuation, names []string) string {
	parts := make([]string, 0, val.Len())
	for _, name := range names {
		if value, ok := val.Get(name); ok {
			parts = append(parts, name+"="+value)
		}
	}
	return strings.Join(parts, " ")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
