// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evaluator measures the figure of merit of parameter
// configurations by running user-supplied compile, test and clean
// commands.
//
// The evaluator is the only component that launches processes. It
// guarantees that each distinct configuration is evaluated at most
// once: repeated submissions, whether from a restarted search, an
// importance sweep, or concurrent workers racing on the same point,
// resolve to the record produced by the first evaluation.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

var (
	tracer = otel.Tracer("flamingo.tuner")
	meter  = otel.Meter("flamingo.tuner")
)

// Evaluator runs the compile/test/clean cycle for configurations and
// remembers every result it has produced.
//
// Description:
//
//	Evaluator deduplicates by configuration: submitting the same
//	valuation twice performs one process cycle and returns one record.
//	Seeded records from a previous run's log participate in the same
//	deduplication, which is what makes resumed searches skip finished
//	work.
//
// Thread Safety:
//
//	Evaluator is safe for concurrent use. Evaluate may be called from
//	multiple goroutines, and a single Evaluate call fans out across
//	Config.Workers goroutines internally.
type Evaluator struct {
	cfg      Config
	runner   Runner
	logger   *slog.Logger
	observer Observer
	sink     RecordSink
	prior    *Evaluator
	limiter  *rate.Limiter

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	evaluations  metric.Int64Counter
	evalFailures metric.Int64Counter
	testLatency  metric.Float64Histogram

	mu       sync.Mutex
	records  []TestRecord
	failures []TestRecord
	byKey    map[string]int
	inflight map[string]struct{}
	nextID   int

	execs atomic.Int64
}

// Option customizes an Evaluator at construction time.
type Option func(*Evaluator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a lifecycle observer for progress reporting.
func WithObserver(obs Observer) Option {
	return func(e *Evaluator) {
		if obs != nil {
			e.observer = obs
		}
	}
}

// WithSink streams every newly recorded result to sink, in record
// order. Used to keep the on-disk log current while the search runs.
func WithSink(sink RecordSink) Option {
	return func(e *Evaluator) {
		e.sink = sink
	}
}

// WithPrior chains a previously populated evaluator as a read-only
// result source. Submissions that hit a prior record adopt it (and
// write it to this evaluator's sink) instead of re-running commands.
// The importance sweep uses this so that its log is complete even for
// points the main search already measured.
func WithPrior(prior *Evaluator) Option {
	return func(e *Evaluator) {
		e.prior = prior
	}
}

// New creates an Evaluator.
//
// Inputs:
//
//	cfg - Command templates and repetition policy. Validated and
//	      clamped; a missing test command is an error.
//	runner - Process runner used for every command. Must not be nil.
//	opts - Optional observer, sink, logger and prior-run chain.
//
// Outputs:
//
//	*Evaluator - The configured evaluator.
//	error - Non-nil if cfg or runner is unusable.
func New(cfg Config, runner Runner, opts ...Option) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, ErrNilRunner
	}

	e := &Evaluator{
		cfg:      cfg,
		runner:   runner,
		logger:   slog.Default().With(slog.String("component", "evaluator")),
		observer: NopObserver{},
		byKey:    make(map[string]int),
		inflight: make(map[string]struct{}),
		nextID:   1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.Settle > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.Settle), 1)
	}
	return e, nil
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues (graceful degradation).
func (e *Evaluator) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.evaluations, err = meter.Int64Counter("tuner_evaluations_total",
			metric.WithDescription("Number of configurations evaluated"),
		)
		if err != nil {
			initErrors = append(initErrors, "evaluations: "+err.Error())
		}

		e.evalFailures, err = meter.Int64Counter("tuner_evaluation_failures_total",
			metric.WithDescription("Number of configurations that produced no valid score"),
		)
		if err != nil {
			initErrors = append(initErrors, "eval_failures: "+err.Error())
		}

		e.testLatency, err = meter.Float64Histogram("tuner_evaluation_duration_seconds",
			metric.WithDescription("Wall-clock time of the full compile/test/clean cycle"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "test_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some tuner metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Evaluate resolves every valuation in vals to a TestRecord, running
// the compile/test/clean cycle only for configurations this evaluator
// has never seen.
//
// Description:
//
//	Valuations are submitted in order. Already-known configurations
//	(including seeded and prior-run records) are skipped outright.
//	New configurations are assigned sequential IDs at submission time
//	and dispatched to at most Config.Workers concurrent evaluations.
//	Duplicate valuations inside vals resolve to a single evaluation.
//
//	Cancellation stops new submissions; evaluations already in flight
//	run to completion (their commands remain bounded by the runner's
//	per-command timeout) and are recorded, so a resumed search does
//	not lose paid-for measurements.
//
// Inputs:
//
//	ctx - Context for cancellation between submissions.
//	vals - Configurations to resolve. May contain duplicates.
//
// Outputs:
//
//	error - ctx.Err() when cancelled, or the first sink write error.
//	        Results are retrieved with Lookup or Records.
func (e *Evaluator) Evaluate(ctx context.Context, vals []space.Valuation) error {
	e.initMetrics()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, val := range vals {
		if gctx.Err() != nil {
			break
		}
		key := val.Key()

		e.mu.Lock()
		if _, ok := e.byKey[key]; ok {
			e.mu.Unlock()
			continue
		}
		if _, running := e.inflight[key]; running {
			e.mu.Unlock()
			continue
		}
		if e.prior != nil {
			if rec, ok := e.prior.Lookup(val); ok {
				err := e.appendLocked(rec)
				e.mu.Unlock()
				if err != nil {
					return err
				}
				continue
			}
		}
		e.inflight[key] = struct{}{}
		id := e.nextID
		e.nextID++
		e.mu.Unlock()

		val := val
		g.Go(func() error {
			// Go may have blocked on the worker limit; do not start
			// work that was submitted before cancellation arrived.
			if gctx.Err() != nil {
				e.mu.Lock()
				delete(e.inflight, key)
				e.mu.Unlock()
				return nil
			}

			rec := e.evaluateOne(gctx, id, val)

			e.mu.Lock()
			delete(e.inflight, key)
			err := e.appendLocked(rec)
			e.mu.Unlock()

			e.observer.EvaluationFinished(rec)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// appendLocked records rec and forwards it to the sink. Callers hold
// e.mu, which serializes sink writes.
func (e *Evaluator) appendLocked(rec TestRecord) error {
	e.records = append(e.records, rec)
	e.byKey[rec.Valuation.Key()] = len(e.records) - 1
	if !rec.Success() {
		e.failures = append(e.failures, rec)
	}
	if e.sink != nil {
		if err := e.sink.Append(rec); err != nil {
			return fmt.Errorf("recording result %d: %w", rec.ID, err)
		}
	}
	return nil
}

// evaluateOne runs the full command cycle for one configuration.
//
// The context is detached from caller cancellation so that an
// in-flight evaluation finishes (or times out on its own deadline)
// rather than being killed halfway and wasting the work done so far.
func (e *Evaluator) evaluateOne(ctx context.Context, id int, val space.Valuation) TestRecord {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "tuner.Evaluate",
		trace.WithAttributes(
			attribute.Int("test.id", id),
			attribute.String("test.configuration", val.String()),
		),
	)
	defer span.End()

	start := time.Now()
	e.observer.EvaluationStarted(id, val)
	e.logger.Debug("evaluation started",
		slog.Int("id", id),
		slog.String("configuration", val.String()),
	)

	rec := TestRecord{ID: id, Valuation: val, Timestamp: start}

	if e.cfg.CompileTemplate != "" {
		if !e.compile(ctx, id, val) {
			rec.Outcome = OutcomeFailure
			rec.Reason = ReasonCompileFailed
			span.SetStatus(codes.Error, ReasonCompileFailed)
			e.clean(ctx, id, val)
			rec.Duration = time.Since(start)
			e.recordMetrics(ctx, rec)
			return rec
		}
	}

	samples, launchErr := e.test(ctx, id, val)
	e.clean(ctx, id, val)

	rec.RawScores = samples
	rec.Duration = time.Since(start)

	switch {
	case len(samples) == 0 && launchErr != nil:
		rec.Outcome = OutcomeFailure
		rec.Reason = ReasonLaunchFailed
		span.RecordError(launchErr)
		span.SetStatus(codes.Error, ReasonLaunchFailed)
	case len(samples) == 0:
		rec.Outcome = OutcomeFailure
		rec.Reason = ReasonNoMeasurements
		span.SetStatus(codes.Error, ReasonNoMeasurements)
	default:
		agg, err := e.cfg.Aggregator.Reduce(samples)
		if err != nil {
			rec.Outcome = OutcomeFailure
			rec.Reason = ReasonNoMeasurements
			span.SetStatus(codes.Error, ReasonNoMeasurements)
			break
		}
		rec.Outcome = OutcomeSuccess
		rec.Aggregate = agg
		span.SetAttributes(attribute.Float64("test.score", agg))
		span.SetStatus(codes.Ok, "")
	}

	e.recordMetrics(ctx, rec)
	return rec
}

// compile runs the build command once. Returns false if the build
// exited nonzero or could not run; the configuration is then failed
// without running any tests.
func (e *Evaluator) compile(ctx context.Context, id int, val space.Valuation) bool {
	e.observer.EvaluationPhase(id, PhaseCompile, 0, 0)
	cmdline := Render(e.cfg.CompileTemplate, id, val)

	res, err := e.run(ctx, cmdline)
	if err != nil {
		e.logger.Error("compile command failed to run",
			slog.Int("id", id),
			slog.String("command", cmdline),
			slog.Any("error", err),
		)
		return false
	}
	if res.ExitCode != 0 {
		e.logger.Error("compile failed",
			slog.Int("id", id),
			slog.String("command", cmdline),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", tail(res.Stderr, 512)),
		)
		return false
	}
	return true
}

// test runs the test command Config.Repeat times and collects one
// sample per usable repetition.
//
// A repetition that times out, exits nonzero, or prints an unparsable
// score is discarded with a warning; the remaining repetitions still
// count. A command that cannot be launched at all aborts the loop,
// since retrying a missing binary cannot succeed.
func (e *Evaluator) test(ctx context.Context, id int, val space.Valuation) ([]float64, error) {
	cmdline := Render(e.cfg.TestTemplate, id, val)
	samples := make([]float64, 0, e.cfg.Repeat)

	for rep := 1; rep <= e.cfg.Repeat; rep++ {
		e.observer.EvaluationPhase(id, PhaseTest, rep, e.cfg.Repeat)
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return samples, nil
			}
		}

		res, err := e.run(ctx, cmdline)
		switch {
		case errors.Is(err, ErrCommandTimeout):
			e.logger.Warn("test repetition timed out",
				slog.Int("id", id),
				slog.Int("repetition", rep),
				slog.Duration("elapsed", res.Duration),
			)
			continue
		case err != nil:
			e.logger.Error("test command failed to launch",
				slog.Int("id", id),
				slog.String("command", cmdline),
				slog.Any("error", err),
			)
			return samples, err
		case res.ExitCode != 0:
			e.logger.Warn("test exited nonzero, discarding repetition",
				slog.Int("id", id),
				slog.Int("repetition", rep),
				slog.Int("exit_code", res.ExitCode),
				slog.String("stderr", tail(res.Stderr, 512)),
			)
			continue
		}

		switch e.cfg.FOM {
		case FOMWallClock:
			samples = append(samples, res.Duration.Seconds())
		default:
			fom, perr := ParseFOM(res.Stdout)
			if perr != nil {
				e.logger.Warn("could not parse figure of merit, discarding repetition",
					slog.Int("id", id),
					slog.Int("repetition", rep),
					slog.Any("error", perr),
				)
				continue
			}
			samples = append(samples, fom)
		}
	}
	return samples, nil
}

// clean runs the cleanup command, if any. Cleanup problems are logged
// and otherwise ignored so they can never mask the test outcome.
func (e *Evaluator) clean(ctx context.Context, id int, val space.Valuation) {
	if e.cfg.CleanTemplate == "" {
		return
	}
	e.observer.EvaluationPhase(id, PhaseClean, 0, 0)
	cmdline := Render(e.cfg.CleanTemplate, id, val)

	res, err := e.run(ctx, cmdline)
	if err != nil {
		e.logger.Warn("clean command failed to run",
			slog.Int("id", id),
			slog.String("command", cmdline),
			slog.Any("error", err),
		)
		return
	}
	if res.ExitCode != 0 {
		e.logger.Warn("clean exited nonzero",
			slog.Int("id", id),
			slog.Int("exit_code", res.ExitCode),
		)
	}
}

// run executes one command and counts it.
func (e *Evaluator) run(ctx context.Context, cmdline string) (*Result, error) {
	e.execs.Add(1)
	return e.runner.Run(ctx, cmdline)
}

func (e *Evaluator) recordMetrics(ctx context.Context, rec TestRecord) {
	attrs := metric.WithAttributes(attribute.String("outcome", rec.Outcome.String()))
	if e.evaluations != nil {
		e.evaluations.Add(ctx, 1, attrs)
	}
	if e.evalFailures != nil && !rec.Success() {
		e.evalFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rec.Reason)))
	}
	if e.testLatency != nil {
		e.testLatency.Record(ctx, rec.Duration.Seconds(), attrs)
	}
}

// Seed loads records from a previous run so their configurations are
// never re-evaluated.
//
// Description:
//
//	Seeded records keep their IDs and are re-emitted to the sink,
//	making the new run's log self-contained: resuming from it later
//	sees the full history, not just the increment. ID allocation for
//	new evaluations continues above the highest seeded ID. Records
//	whose configuration is already known are ignored.
//
// Inputs:
//
//	recs - Records parsed from a prior result log, in file order.
//
// Outputs:
//
//	error - The first sink write error, if any.
func (e *Evaluator) Seed(recs []TestRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rec := range recs {
		if _, ok := e.byKey[rec.Valuation.Key()]; ok {
			continue
		}
		if err := e.appendLocked(rec); err != nil {
			return err
		}
		if rec.ID >= e.nextID {
			e.nextID = rec.ID + 1
		}
	}
	return nil
}

// Lookup returns the record for val, if this evaluator has one.
func (e *Evaluator) Lookup(val space.Valuation) (TestRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.byKey[val.Key()]
	if !ok {
		return TestRecord{}, false
	}
	return e.records[idx], true
}

// Has reports whether val has already been resolved.
func (e *Evaluator) Has(val space.Valuation) bool {
	_, ok := e.Lookup(val)
	return ok
}

// Records returns a copy of every record in evaluation order
// (seeded records first, then new evaluations as they completed).
func (e *Evaluator) Records() []TestRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TestRecord, len(e.records))
	copy(out, e.records)
	return out
}

// Failures returns a copy of the records that produced no valid score.
func (e *Evaluator) Failures() []TestRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TestRecord, len(e.failures))
	copy(out, e.failures)
	return out
}

// Len returns the number of resolved configurations.
func (e *Evaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Executions returns how many external commands this evaluator has
// launched. Seeded and deduplicated submissions launch none.
func (e *Evaluator) Executions() int {
	return int(e.execs.Load())
}

// ParseFOM extracts the figure of merit from test command output: the
// last non-empty line, parsed as a float. Test programs may print
// diagnostics freely as long as the score is printed last.
func ParseFOM(stdout string) (float64, error) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fom, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: last line %q", ErrUnparsableFOM, line)
		}
		return fom, nil
	}
	return 0, fmt.Errorf("%w: output empty", ErrUnparsableFOM)
}

// tail returns at most n trailing bytes of s, for log context.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
