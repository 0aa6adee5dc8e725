// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package strategy names the pluggable pieces of a tuning run.
//
// Two capabilities are registered here: search drivers (how the
// configuration space is walked) and evaluator builders (how a single
// configuration is measured). A tuning file selects both by name; the
// defaults reproduce the standard exhaustive search over external
// process runs. Lookups are typed, so misconfiguration surfaces as an
// error at startup instead of a type assertion failure mid-run.
package strategy

import (
	"context"
	"log/slog"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// Default strategy names, registered by this package.
const (
	// DefaultSearch walks every valid configuration exactly once.
	DefaultSearch = "exhaustive"

	// DefaultEvaluator measures configurations by running external
	// compile/test/clean commands.
	DefaultEvaluator = "process"
)

// Deps bundles everything a search driver needs for one run.
type Deps struct {
	// Space is the configuration space to search.
	Space *space.Space

	// Evaluator measures configurations and deduplicates repeats.
	Evaluator *evaluator.Evaluator

	// Config carries direction and failure threshold.
	Config optimizer.Config

	// Logger receives search progress. Optional.
	Logger *slog.Logger

	// Progress is called after each completed configuration. Optional.
	Progress optimizer.ProgressFunc
}

// Search is one instantiated search driver, bound to a space and an
// evaluator, good for a single run.
type Search interface {
	// Run walks the space. It returns a summary even when the run is
	// cancelled or stops short.
	Run(ctx context.Context) (*optimizer.Summary, error)

	// Importance performs the post-optimum sweep using the given
	// evaluator for any configurations not seen during Run.
	Importance(ctx context.Context, sweep *evaluator.Evaluator) (*optimizer.ImportanceReport, error)
}

// SearchFactory builds a Search from its dependencies.
type SearchFactory func(deps Deps) (Search, error)

// EvaluatorBuilder constructs a measurement engine. evaluator.New is
// the canonical implementation.
type EvaluatorBuilder func(cfg evaluator.Config, runner evaluator.Runner, opts ...evaluator.Option) (*evaluator.Evaluator, error)

// Package-level registries, one per capability.
var (
	// Searches holds the registered search drivers.
	Searches = NewRegistry[SearchFactory]("search")

	// Evaluators holds the registered evaluator builders.
	Evaluators = NewRegistry[EvaluatorBuilder]("evaluator")
)

func init() {
	Searches.MustRegister(DefaultSearch, newExhaustive)
	Evaluators.MustRegister(DefaultEvaluator, evaluator.New)
}

// ==============================================================================
// EXHAUSTIVE SEARCH
// ==============================================================================

// exhaustive adapts the optimizer to the Search capability.
type exhaustive struct {
	o *optimizer.Optimizer
}

func newExhaustive(deps Deps) (Search, error) {
	var opts []optimizer.OptimizerOption
	if deps.Logger != nil {
		opts = append(opts, optimizer.WithLogger(deps.Logger))
	}
	if deps.Progress != nil {
		opts = append(opts, optimizer.WithProgress(deps.Progress))
	}

	o, err := optimizer.New(deps.Config, deps.Space, deps.Evaluator, opts...)
	if err != nil {
		return nil, err
	}
	return &exhaustive{o: o}, nil
}

func (e *exhaustive) Run(ctx context.Context) (*optimizer.Summary, error) {
	return e.o.Run(ctx)
}

func (e *exhaustive) Importance(ctx context.Context, sweep *evaluator.Evaluator) (*optimizer.ImportanceReport, error) {
	return e.o.RunImportance(ctx, sweep)
}
