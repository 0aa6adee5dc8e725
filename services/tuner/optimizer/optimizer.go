// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package optimizer drives the exhaustive search: it enumerates the
// configuration space, feeds configurations to the evaluator, tracks
// the best score under the chosen direction, and judges whether the
// finished run can be trusted.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
	"github.com/omariosc/autotuning-cuda/services/tuner/stats"
)

var tracer = otel.Tracer("flamingo.tuner")

// ==============================================================================
// DIRECTION
// ==============================================================================

// Direction selects what counts as an improvement.
type Direction int

const (
	// Minimize treats lower aggregate scores as better.
	Minimize Direction = iota

	// Maximize treats higher aggregate scores as better.
	Maximize
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Better reports whether score a strictly improves on b under d.
// Ties are not improvements, which is what keeps the earliest best.
func (d Direction) Better(a, b float64) bool {
	if d == Maximize {
		return a > b
	}
	return a < b
}

// ParseObjective maps an objective selector to a direction and a
// measurement source. The plain forms read the score from test
// output; the _time forms use the wall clock of the test process.
//
// Accepted: "min", "max", "min_time", "max_time".
func ParseObjective(s string) (Direction, evaluator.FOMMode, error) {
	switch s {
	case "min":
		return Minimize, evaluator.FOMCustom, nil
	case "max":
		return Maximize, evaluator.FOMCustom, nil
	case "min_time":
		return Minimize, evaluator.FOMWallClock, nil
	case "max_time":
		return Maximize, evaluator.FOMWallClock, nil
	default:
		return Minimize, evaluator.FOMCustom, fmt.Errorf("%w: %q", ErrUnknownObjective, s)
	}
}

// ==============================================================================
// STATE
// ==============================================================================

// State is the optimizer lifecycle.
//
// Idle -> Running -> {Succeeded, InsufficientResults, Cancelled}.
type State int

const (
	// StateIdle means Run has not been called.
	StateIdle State = iota

	// StateRunning means the search loop is active.
	StateRunning

	// StateSucceeded means enumeration completed with at least one
	// valid score and an acceptable failure rate.
	StateSucceeded

	// StateInsufficientResults means enumeration completed but too
	// many evaluations failed for the best result to be trusted.
	StateInsufficientResults

	// StateCancelled means the run stopped early; results so far are
	// flushed and a later run can resume from the log.
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateInsufficientResults:
		return "insufficient_results"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateInsufficientResults, StateCancelled:
		return true
	default:
		return false
	}
}

// ==============================================================================
// CONFIG
// ==============================================================================

// defaultFailureThreshold is the failure fraction above which a
// completed run is downgraded to InsufficientResults.
const defaultFailureThreshold = 0.5

// defaultBatchSize is how many configurations are submitted to the
// evaluator per call. Batching is what lets a parallel evaluator keep
// its workers busy; with one worker it degenerates to sequential
// evaluation in enumeration order.
const defaultBatchSize = 16

// Config controls a search run.
type Config struct {
	// Direction selects minimization or maximization.
	Direction Direction

	// FailureThreshold is the tolerated failure fraction in (0, 1].
	// Out-of-range values clamp to the 0.5 default.
	FailureThreshold float64

	// BatchSize bounds configurations per evaluator submission.
	// Values below 1 clamp to the default.
	BatchSize int
}

// DefaultConfig returns a minimizing run with the standard failure
// threshold.
func DefaultConfig() Config {
	return Config{
		Direction:        Minimize,
		FailureThreshold: defaultFailureThreshold,
		BatchSize:        defaultBatchSize,
	}
}

// Validate clamps out-of-range fields.
func (c *Config) Validate() error {
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.BatchSize < 1 {
		c.BatchSize = defaultBatchSize
	}
	return nil
}

// ==============================================================================
// OPTIMIZER
// ==============================================================================

// ProgressFunc receives completed and total counts after each
// resolved configuration. Completed includes configurations skipped
// because a resumed log already had them.
type ProgressFunc func(done, total int)

// Summary is the outcome of a finished (or interrupted) run.
type Summary struct {
	// State is the terminal state.
	State State

	// Best is the best successful record found, meaningful only when
	// HasBest is true.
	Best evaluator.TestRecord

	// HasBest reports whether any configuration produced a valid
	// score.
	HasBest bool

	// TestsRequired is the full size of the configuration space.
	TestsRequired int

	// Evaluated is how many configurations have resolved records,
	// including those seeded from a resumed log.
	Evaluated int

	// Failed is how many of those records are failures.
	Failed int

	// FailureRate is Failed over Evaluated.
	FailureRate float64

	// Executions is how many external commands this run launched. A
	// fully resumed run launches zero.
	Executions int

	// Elapsed is the wall-clock duration of the run loop.
	Elapsed time.Duration
}

// Optimizer owns one search run over one configuration space.
//
// Thread Safety:
//
//	State and Best may be read concurrently with Run. Run itself must
//	be called once; further calls return ErrAlreadyRun.
type Optimizer struct {
	cfg      Config
	space    *space.Space
	ev       *evaluator.Evaluator
	logger   *slog.Logger
	progress ProgressFunc

	mu      sync.Mutex
	state   State
	best    evaluator.TestRecord
	hasBest bool
}

// OptimizerOption customizes an Optimizer.
type OptimizerOption func(*Optimizer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) OptimizerOption {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgress registers a progress callback. The search never
// depends on it; it exists for display.
func WithProgress(fn ProgressFunc) OptimizerOption {
	return func(o *Optimizer) {
		o.progress = fn
	}
}

// New creates an Optimizer over sp using ev for measurements.
func New(cfg Config, sp *space.Space, ev *evaluator.Evaluator, opts ...OptimizerOption) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, ErrNilSpace
	}
	if ev == nil {
		return nil, ErrNilEvaluator
	}

	o := &Optimizer{
		cfg:    cfg,
		space:  sp,
		ev:     ev,
		logger: slog.Default().With(slog.String("component", "optimizer")),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Best returns the best record found so far and whether one exists.
func (o *Optimizer) Best() (evaluator.TestRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.best, o.hasBest
}

// TestsRequired returns the total number of configurations the space
// contains, before any resume skipping.
func (o *Optimizer) TestsRequired() int {
	return o.space.Count()
}

// Run executes the search to completion or cancellation.
//
// Description:
//
//	Enumerates the space in its deterministic order, submitting
//	configurations in batches. Every resolved record updates the
//	best under the direction comparator; failed records never
//	improve the best, and ties keep the earlier configuration.
//
//	Cancellation is honored between submissions. Whatever records
//	exist by then are already flushed through the evaluator's sink,
//	so the run can be resumed from its log.
//
// Outputs:
//
//	*Summary - Always non-nil, describing the terminal state.
//	error - ctx.Err() when cancelled, or a fatal evaluator error
//	        (such as a log write failure).
func (o *Optimizer) Run(ctx context.Context) (*Summary, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	o.state = StateRunning
	o.mu.Unlock()

	total := o.space.Count()
	ctx, span := tracer.Start(ctx, "tuner.Optimize",
		trace.WithAttributes(
			attribute.String("tuner.direction", o.cfg.Direction.String()),
			attribute.Int("tuner.tests_required", total),
		),
	)
	defer span.End()

	o.logger.Info("search started",
		slog.String("direction", o.cfg.Direction.String()),
		slog.Int("tests_required", total),
		slog.Int("already_known", o.ev.Len()),
	)

	start := time.Now()
	done := 0
	var runErr error

	batch := make([]space.Valuation, 0, o.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := o.ev.Evaluate(ctx, batch); err != nil && ctx.Err() == nil {
			return err
		}
		for _, v := range batch {
			rec, ok := o.ev.Lookup(v)
			if !ok {
				continue
			}
			done++
			o.observe(rec)
			if o.progress != nil {
				o.progress(done, total)
			}
		}
		batch = batch[:0]
		return nil
	}

	o.space.Each(func(v space.Valuation) bool {
		if ctx.Err() != nil {
			return false
		}
		batch = append(batch, v)
		if len(batch) >= o.cfg.BatchSize {
			if err := flush(); err != nil {
				runErr = err
				return false
			}
		}
		return true
	})
	if runErr == nil {
		runErr = flush()
	}

	summary := o.finish(ctx, runErr, total, time.Since(start))

	switch summary.State {
	case StateSucceeded:
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Error, summary.State.String())
	}
	span.SetAttributes(
		attribute.Int("tuner.evaluated", summary.Evaluated),
		attribute.Int("tuner.failed", summary.Failed),
	)

	if runErr == nil {
		runErr = ctx.Err()
	}
	return summary, runErr
}

// observe folds one record into the best-so-far.
func (o *Optimizer) observe(rec evaluator.TestRecord) {
	if !rec.Success() {
		o.logger.Warn("configuration failed",
			slog.String("configuration", rec.Valuation.String()),
			slog.String("reason", rec.Reason),
		)
		return
	}

	o.mu.Lock()
	improved := !o.hasBest || o.cfg.Direction.Better(rec.Aggregate, o.best.Aggregate)
	if improved {
		o.best = rec
		o.hasBest = true
	}
	o.mu.Unlock()

	if improved {
		o.logger.Info("new best configuration",
			slog.Int("id", rec.ID),
			slog.String("configuration", rec.Valuation.String()),
			slog.Float64("score", rec.Aggregate),
		)
	}
}

// finish decides the terminal state and builds the summary.
func (o *Optimizer) finish(ctx context.Context, runErr error, total int, elapsed time.Duration) *Summary {
	evaluated := o.ev.Len()
	failed := len(o.ev.Failures())
	rate := stats.FailureRate(failed, evaluated)

	var state State
	switch {
	case runErr != nil || ctx.Err() != nil:
		state = StateCancelled
	case !o.hasAnyBest():
		state = StateInsufficientResults
	case rate > o.cfg.FailureThreshold:
		state = StateInsufficientResults
	default:
		state = StateSucceeded
	}

	o.mu.Lock()
	o.state = state
	best, hasBest := o.best, o.hasBest
	o.mu.Unlock()

	summary := &Summary{
		State:         state,
		Best:          best,
		HasBest:       hasBest,
		TestsRequired: total,
		Evaluated:     evaluated,
		Failed:        failed,
		FailureRate:   rate,
		Executions:    o.ev.Executions(),
		Elapsed:       elapsed,
	}

	o.logger.Info("search finished",
		slog.String("state", state.String()),
		slog.Int("evaluated", evaluated),
		slog.Int("failed", failed),
		slog.Duration("elapsed", elapsed),
	)
	return summary
}

func (o *Optimizer) hasAnyBest() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasBest
}
