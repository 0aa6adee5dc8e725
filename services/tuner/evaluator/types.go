// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"time"

	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// ==============================================================================
// Outcomes
// ==============================================================================

// Outcome classifies one evaluated configuration.
type Outcome int

const (
	// OutcomeSuccess means at least one repetition produced a valid
	// measurement and an aggregate score exists.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the configuration produced no usable score.
	// The record's Reason says why.
	OutcomeFailure
)

// String returns "success" or "failure".
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Failure reasons recorded on TestRecords. These strings are persisted
// in result logs, so they are stable.
const (
	// ReasonCompileFailed: the compile command exited nonzero or could
	// not be launched. The test step was skipped.
	ReasonCompileFailed = "compile failed"

	// ReasonNoMeasurements: every test repetition failed to produce a
	// parsable figure of merit.
	ReasonNoMeasurements = "no valid measurements"

	// ReasonLaunchFailed: the test command could not be started at all
	// (missing shell or binary, exec failure).
	ReasonLaunchFailed = "test launch failed"
)

// ==============================================================================
// FOM Modes
// ==============================================================================

// FOMMode selects where the figure of merit comes from.
type FOMMode int

const (
	// FOMCustom parses the last non-empty line of the test command's
	// standard output as a float.
	FOMCustom FOMMode = iota

	// FOMWallClock uses the test command's wall-clock duration in
	// seconds. Selected by the *_time optimization directions.
	FOMWallClock
)

// String returns "custom" or "wall_clock".
func (m FOMMode) String() string {
	switch m {
	case FOMCustom:
		return "custom"
	case FOMWallClock:
		return "wall_clock"
	default:
		return "unknown"
	}
}

// ==============================================================================
// Records
// ==============================================================================

// TestRecord is the immutable result of evaluating one distinct
// configuration. Exactly one record exists per distinct valuation in
// a log, including across resumed runs and the importance sweep.
type TestRecord struct {
	// ID is the sequential test number, assigned at submission time.
	// Substituted for %%ID%% in command templates.
	ID int

	// Valuation is the configuration that was evaluated.
	Valuation space.Valuation

	// RawScores holds the figure of merit from each repetition that
	// produced one. May be shorter than the configured repeat count
	// when repetitions were discarded.
	RawScores []float64

	// Aggregate is the reduced score. Valid only when Outcome is
	// OutcomeSuccess.
	Aggregate float64

	// Outcome classifies the evaluation.
	Outcome Outcome

	// Reason is the failure explanation for OutcomeFailure records,
	// empty otherwise.
	Reason string

	// Duration is the wall time of the full compile/test/clean cycle.
	Duration time.Duration

	// Timestamp is when the evaluation started.
	Timestamp time.Time
}

// Success reports whether the record carries a usable aggregate.
func (r TestRecord) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// ==============================================================================
// Sinks and Observers
// ==============================================================================

// RecordSink receives each TestRecord as it is appended to the
// in-memory log, typically to persist it. Appends are serialized by
// the evaluator; implementations need not lock against it.
type RecordSink interface {
	Append(rec TestRecord) error
}

// Phase identifies the sub-step of an evaluation in progress.
type Phase int

const (
	// PhaseCompile is the one-shot compile step.
	PhaseCompile Phase = iota

	// PhaseTest is a test repetition.
	PhaseTest

	// PhaseClean is the cleanup step.
	PhaseClean
)

// String returns "compile", "test", or "clean".
func (p Phase) String() string {
	switch p {
	case PhaseCompile:
		return "compile"
	case PhaseTest:
		return "test"
	case PhaseClean:
		return "clean"
	default:
		return "unknown"
	}
}

// Observer receives one-way progress notifications. Observers are for
// display and live status only: evaluation correctness never depends
// on one being attached, and callbacks run on evaluator goroutines so
// they must return quickly.
type Observer interface {
	// EvaluationStarted fires when a configuration begins its cycle.
	EvaluationStarted(id int, val space.Valuation)

	// EvaluationPhase fires on each sub-step. For PhaseTest,
	// repetition counts from 1 to total; other phases report 0/0.
	EvaluationPhase(id int, phase Phase, repetition, total int)

	// EvaluationFinished fires with the completed record, success or
	// failure.
	EvaluationFinished(rec TestRecord)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

// EvaluationStarted is a no-op.
func (NopObserver) EvaluationStarted(int, space.Valuation) {}

// EvaluationPhase is a no-op.
func (NopObserver) EvaluationPhase(int, Phase, int, int) {}

// EvaluationFinished is a no-op.
func (NopObserver) EvaluationFinished(TestRecord) {}

var _ Observer = NopObserver{}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

// EvaluationStarted forwards to every observer.
func (m MultiObserver) EvaluationStarted(id int, val space.Valuation) {
	for _, o := range m {
		o.EvaluationStarted(id, val)
	}
}

// EvaluationPhase forwards to every observer.
func (m MultiObserver) EvaluationPhase(id int, phase Phase, repetition, total int) {
	for _, o := range m {
		o.EvaluationPhase(id, phase, repetition, total)
	}
}

// EvaluationFinished forwards to every observer.
func (m MultiObserver) EvaluationFinished(rec TestRecord) {
	for _, o := range m {
		o.EvaluationFinished(rec)
	}
}
