// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package optimizer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// ==============================================================================
// IMPORTANCE SWEEP
// ==============================================================================

// ValueResult is one point of a variable's sweep: the optimum with
// that variable overridden to Value.
type ValueResult struct {
	// Value is the domain value tried.
	Value string

	// Record is the measurement, meaningful only when Resolved.
	Record evaluator.TestRecord

	// Resolved reports whether a record exists. It is false only
	// when the sweep was cancelled before this point resolved.
	Resolved bool

	// Reused reports whether the record came from an earlier
	// evaluation (the main run or an earlier sweep point) instead of
	// a fresh one.
	Reused bool
}

// VariableImportance is the local sensitivity of one variable around
// the optimum.
type VariableImportance struct {
	// Name is the variable.
	Name string

	// Baseline is the value the variable has in the optimum.
	Baseline string

	// Results holds one entry per domain value, in domain order.
	Results []ValueResult

	// Spread is the difference between the best and worst successful
	// scores across Results. Zero when fewer than two points
	// succeeded. A large spread marks a variable worth tuning first.
	Spread float64

	// NewEvaluations is how many Results needed a fresh evaluation.
	NewEvaluations int
}

// ImportanceReport is the outcome of a full sweep.
type ImportanceReport struct {
	// Variables holds one entry per active variable of the optimum,
	// in tree declaration order.
	Variables []VariableImportance

	// NewEvaluations is the total number of fresh evaluations the
	// sweep performed. Zero means every sweep point coincided with
	// an already-measured configuration and no additional tests were
	// required.
	NewEvaluations int
}

// NoneRequired reports whether the sweep ran entirely from existing
// results.
func (r *ImportanceReport) NoneRequired() bool {
	return r.NewEvaluations == 0
}

// RunImportance perturbs the best configuration one variable at a
// time to gauge each variable's local sensitivity.
//
// Description:
//
//	For every variable active in the best configuration, every value
//	of its domain is tried while all other variables keep their
//	optimal values. Points that equal an already-measured
//	configuration (always including the optimum itself) reuse the
//	existing record through the sweep evaluator's chaining, so the
//	sweep never re-runs finished work.
//
//	The sweep evaluator should be a fresh Evaluator chained to the
//	main run's via evaluator.WithPrior, with its own sink so the
//	sweep log is written separately from the main log.
//
// Inputs:
//
//	ctx - Context for cancellation between submissions.
//	sweep - Evaluator for sweep measurements. Must not be the main
//	        run's evaluator if a separate sweep log is wanted.
//
// Outputs:
//
//	*ImportanceReport - Per-variable sensitivity, partial on
//	                    cancellation.
//	error - ctx.Err() when cancelled, or a fatal evaluator error.
func (o *Optimizer) RunImportance(ctx context.Context, sweep *evaluator.Evaluator) (*ImportanceReport, error) {
	if sweep == nil {
		return nil, ErrNilEvaluator
	}
	best, ok := o.Best()
	if !ok {
		return nil, ErrNoOptimum
	}
	optimum := best.Valuation

	ctx, span := tracer.Start(ctx, "tuner.ImportanceSweep",
		trace.WithAttributes(attribute.String("tuner.optimum", optimum.String())),
	)
	defer span.End()

	o.logger.Info("importance sweep started",
		slog.String("optimum", optimum.String()),
	)

	report := &ImportanceReport{}
	for _, name := range o.space.Tree().Flatten() {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		baseline, active := optimum.Get(name)
		if !active {
			continue
		}
		v, known := o.space.Tree().Lookup(name)
		if !known {
			continue
		}

		vi := VariableImportance{Name: v.Name, Baseline: baseline}

		candidates := make([]space.Valuation, 0, len(v.Domain))
		fresh := make(map[string]bool, len(v.Domain))
		for _, value := range v.Domain {
			cand := optimum.WithValue(v.Name, value)
			if !sweep.Has(cand) && !o.ev.Has(cand) {
				fresh[cand.Key()] = true
			}
			candidates = append(candidates, cand)
		}

		if err := sweep.Evaluate(ctx, candidates); err != nil && ctx.Err() == nil {
			return report, err
		}

		for _, cand := range candidates {
			value, _ := cand.Get(v.Name)
			rec, resolved := sweep.Lookup(cand)
			vi.Results = append(vi.Results, ValueResult{
				Value:    value,
				Record:   rec,
				Resolved: resolved,
				Reused:   resolved && !fresh[cand.Key()],
			})
			if resolved && fresh[cand.Key()] {
				vi.NewEvaluations++
			}
		}

		vi.Spread = spread(vi.Results)
		report.Variables = append(report.Variables, vi)
		report.NewEvaluations += vi.NewEvaluations

		o.logger.Info("variable swept",
			slog.String("variable", v.Name),
			slog.Float64("spread", vi.Spread),
			slog.Int("new_evaluations", vi.NewEvaluations),
		)
	}

	span.SetAttributes(attribute.Int("tuner.sweep_new_evaluations", report.NewEvaluations))
	return report, ctx.Err()
}

// spread returns max minus min over the successful scores.
func spread(results []ValueResult) float64 {
	var lo, hi float64
	n := 0
	for _, r := range results {
		if !r.Resolved || !r.Record.Success() {
			continue
		}
		score := r.Record.Aggregate
		if n == 0 || score < lo {
			lo = score
		}
		if n == 0 || score > hi {
			hi = score
		}
		n++
	}
	if n < 2 {
		return 0
	}
	return hi - lo
}
