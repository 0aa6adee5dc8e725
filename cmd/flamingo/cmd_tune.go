// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omariosc/autotuning-cuda/pkg/console"
	"github.com/omariosc/autotuning-cuda/services/tuner/config"
	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/history"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/resultlog"
	"github.com/omariosc/autotuning-cuda/services/tuner/status"
	"github.com/omariosc/autotuning-cuda/services/tuner/strategy"
	"github.com/omariosc/autotuning-cuda/services/tuner/telemetry"
)

func runTune(cmd *cobra.Command, args []string) {
	if err := tune(args[0]); err != nil {
		log.Fatalf("Tuning failed: %v", err)
	}
}

// tune runs one full session: load, search, report, sweep, archive.
func tune(configPath string) error {
	toolCfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	logger := newToolLogger(toolCfg, "tuner")
	defer logger.Close()
	slogger := logger.Slog()

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workersOverride > 0 {
		settings.Tuning.Workers = workersOverride
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	// First signal cancels the run cooperatively: in-flight commands
	// are killed, finished results stay flushed in the log.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telShutdown, err := telemetry.Init(ctx, telemetryConfig(toolCfg))
	if err != nil {
		return err
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telShutdown(shCtx); err != nil {
			slogger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	c, closeTranscript, err := newRunConsole(settings.Output.Transcript)
	if err != nil {
		return err
	}
	defer closeTranscript()

	sp, err := settings.Space()
	if err != nil {
		return err
	}
	names, err := settings.VariableNames()
	if err != nil {
		return err
	}
	evalCfg, err := settings.EvaluatorConfig()
	if err != nil {
		return err
	}
	optCfg, err := settings.OptimizerConfig()
	if err != nil {
		return err
	}

	// Read prior results before the log is recreated; the resume
	// file is usually the previous run's log at the same path.
	var prior []evaluator.TestRecord
	if resumePath != "" {
		prior, err = resultlog.Read(resumePath, names, evalCfg.Repeat)
		if err != nil {
			return err
		}
	}

	logWriter, err := resultlog.Create(settings.Output.Log, names, evalCfg.Repeat)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	runner := evaluator.NewShellRunner(slogger)
	runner.Timeout = settings.Commands.Timeout.Std()

	evalOpts := []evaluator.Option{
		evaluator.WithLogger(slogger),
		evaluator.WithSink(logWriter),
	}

	var tracker *status.Tracker
	addr := statusAddr
	if addr == "" {
		addr = toolCfg.StatusAddr
	}
	if addr != "" {
		tracker = status.NewTracker(optCfg.Direction, slogger)
		tracker.SetTotal(sp.Count())
		server, err := status.NewServer(status.Config{Addr: addr}, tracker,
			status.WithServerLogger(slogger))
		if err != nil {
			return err
		}
		if err := server.Start(ctx); err != nil {
			return err
		}
		c.Printf("Status server on http://%s\n", server.Addr())
		evalOpts = append(evalOpts, evaluator.WithObserver(tracker))
	}

	buildEvaluator, err := strategy.Evaluators.Resolve(strategy.DefaultEvaluator)
	if err != nil {
		return err
	}
	ev, err := buildEvaluator(evalCfg, runner, evalOpts...)
	if err != nil {
		return err
	}

	if len(prior) > 0 {
		if err := ev.Seed(prior); err != nil {
			return err
		}
		if tracker != nil {
			tracker.Seed(ev.Records())
		}
		c.Printf("Adopted %d results from %s\n", ev.Len(), resumePath)
	}

	newSearch, err := strategy.Searches.Resolve(settings.Tuning.Strategy)
	if err != nil {
		return err
	}
	search, err := newSearch(strategy.Deps{
		Space:     sp,
		Evaluator: ev,
		Config:    optCfg,
		Logger:    slogger,
		Progress: func(done, total int) {
			c.Progress("Tested %d/%d configurations", done, total)
		},
	})
	if err != nil {
		return err
	}

	c.Printf("Tuning with %s\n", configPath)
	c.Printf("%d configurations, objective %s, %d repetition(s), %d worker(s)\n",
		sp.Count(), settings.Scoring.Optimal, evalCfg.Repeat, evalCfg.Workers)

	startedAt := time.Now().UTC()
	if tracker != nil {
		tracker.SetState("tuning")
	}

	summary, runErr := search.Run(ctx)
	c.EndProgress()
	if summary == nil {
		return runErr
	}
	if tracker != nil {
		tracker.SetState(summary.State.String())
	}

	printRunSummary(c, summary, names, ev.Failures())

	if runErr == nil && summary.State == optimizer.StateSucceeded && summary.HasBest {
		err := runImportanceSweep(ctx, c, search, buildEvaluator, settings, names, evalCfg, runner, ev, slogger)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			runErr = err
		default:
			return err
		}
	}

	archiveRun(c, toolCfg, slogger, settings, configPath, summary, optCfg.Direction, startedAt)

	if summary.State == optimizer.StateCancelled || errors.Is(runErr, context.Canceled) {
		c.Printf("\nInterrupted. Resume with: flamingo tune %s --resume %s\n",
			configPath, settings.Output.Log)
		return nil
	}
	if runErr != nil {
		return runErr
	}
	return nil
}

// runImportanceSweep perturbs the optimum one variable at a time. The
// sweep evaluator chains to the main run's, so any point already
// measured costs nothing; only unseen neighbours run commands.
func runImportanceSweep(
	ctx context.Context,
	c *console.Console,
	search strategy.Search,
	build strategy.EvaluatorBuilder,
	settings *config.Settings,
	names []string,
	evalCfg evaluator.Config,
	runner evaluator.Runner,
	mainEv *evaluator.Evaluator,
	logger *slog.Logger,
) error {
	sweepLog, err := resultlog.Create(settings.Output.Importance, names, evalCfg.Repeat)
	if err != nil {
		return err
	}
	defer sweepLog.Close()

	sweepEv, err := build(evalCfg, runner,
		evaluator.WithLogger(logger),
		evaluator.WithSink(sweepLog),
		evaluator.WithPrior(mainEv),
	)
	if err != nil {
		return err
	}

	c.Printf("\nSweeping each variable around the optimum\n")
	report, err := search.Importance(ctx, sweepEv)
	if report != nil {
		printImportance(c, report, settings.Output.Importance)
	}
	return err
}

// archiveRun stores the run summary in the local history. Failures
// are logged, never fatal; the CSV log is the source of truth.
func archiveRun(
	c *console.Console,
	toolCfg ToolConfig,
	logger *slog.Logger,
	settings *config.Settings,
	configPath string,
	summary *optimizer.Summary,
	direction optimizer.Direction,
	startedAt time.Time,
) {
	store, err := openHistory(toolCfg, logger)
	if err != nil {
		logger.Warn("run archive unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	sum := &history.RunSummary{
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		State:      summary.State.String(),
		Direction:  direction.String(),
		Tested:     summary.Evaluated,
		Failed:     summary.Failed,
		SpaceSize:  summary.TestsRequired,
		ConfigPath: absPath(configPath),
		LogPath:    absPath(settings.Output.Log),
	}
	if summary.HasBest {
		sum.HasBest = true
		sum.BestScore = summary.Best.Aggregate
		sum.Best = make(map[string]string, summary.Best.Valuation.Len())
		for _, p := range summary.Best.Valuation.Pairs() {
			sum.Best[p.Name] = p.Value
		}
	}

	actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Archive(actx, sum); err != nil {
		logger.Warn("archiving run", slog.String("error", err.Error()))
		return
	}
	c.Printf("Run archived as %s\n", sum.ID)
}
