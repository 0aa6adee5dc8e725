// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package status serves a read-only view of a running tuning session
// over HTTP.
//
// The Tracker observes the evaluator and mirrors its progress; the
// Server exposes that mirror as JSON endpoints, a Prometheus scrape
// target and a websocket event stream. Nothing here feeds back into
// the search: killing the server (or never starting it) changes no
// result.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// subBuffer is the per-subscriber event channel depth. Events beyond
// a stalled subscriber's buffer are dropped; the stream is a live
// view, not a durable feed.
const subBuffer = 64

// ==============================================================================
// VIEWS
// ==============================================================================

// Record is the JSON view of one finished evaluation.
type Record struct {
	ID            int               `json:"id"`
	Configuration map[string]string `json:"configuration"`
	Success       bool              `json:"success"`
	Reason        string            `json:"reason,omitempty"`
	Scores        []float64         `json:"scores,omitempty"`
	Aggregate     float64           `json:"aggregate"`
	DurationSecs  float64           `json:"duration_seconds"`
}

// ActiveTest is the JSON view of an evaluation in flight.
type ActiveTest struct {
	ID            int               `json:"id"`
	Configuration map[string]string `json:"configuration"`
	Phase         string            `json:"phase"`
	Repetition    int               `json:"repetition,omitempty"`
	Total         int               `json:"total,omitempty"`
}

// View is the JSON snapshot served by the status endpoint.
type View struct {
	State     string       `json:"state"`
	Direction string       `json:"direction"`
	Total     int          `json:"total"`
	Done      int          `json:"done"`
	Failed    int          `json:"failed"`
	Best      *Record      `json:"best,omitempty"`
	Active    []ActiveTest `json:"active,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	ElapsedS  float64      `json:"elapsed_seconds"`
}

// Event is one websocket message.
type Event struct {
	Type          string            `json:"type"`
	TestID        int               `json:"test_id,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
	Phase         string            `json:"phase,omitempty"`
	Repetition    int               `json:"repetition,omitempty"`
	Total         int               `json:"total,omitempty"`
	Success       bool              `json:"success,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Aggregate     float64           `json:"aggregate,omitempty"`
	State         string            `json:"state,omitempty"`
	Time          time.Time         `json:"time"`
}

// Event types pushed over the websocket.
const (
	EventStarted  = "evaluation_started"
	EventPhase    = "evaluation_phase"
	EventFinished = "evaluation_finished"
	EventState    = "state_changed"
)

// ==============================================================================
// TRACKER
// ==============================================================================

// Tracker mirrors run progress for the status server.
//
// It implements evaluator.Observer; wire it in with
// evaluator.WithObserver. The zero direction is Minimize.
//
// Thread Safety: Safe for concurrent use.
type Tracker struct {
	logger    *slog.Logger
	direction optimizer.Direction

	mu      sync.RWMutex
	state   string
	total   int
	started time.Time
	records []Record
	failed  int
	best    *Record
	active  map[int]ActiveTest

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewTracker creates a tracker for a run in the given direction.
func NewTracker(direction optimizer.Direction, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:    logger.With(slog.String("component", "status")),
		direction: direction,
		state:     "idle",
		started:   time.Now(),
		active:    make(map[int]ActiveTest),
		subs:      make(map[int]chan Event),
	}
}

// SetTotal records how many evaluations the run will need.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// SetState records a state transition and pushes it to subscribers.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	t.publish(Event{Type: EventState, State: state, Time: time.Now()})
}

// Seed preloads finished records, typically those adopted from a
// prior log on resume, so the results endpoint shows the whole run.
func (t *Tracker) Seed(recs []evaluator.TestRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range recs {
		t.recordLocked(rec)
	}
}

// EvaluationStarted implements evaluator.Observer.
func (t *Tracker) EvaluationStarted(id int, val space.Valuation) {
	cfg := configuration(val)

	t.mu.Lock()
	t.active[id] = ActiveTest{ID: id, Configuration: cfg, Phase: "starting"}
	t.mu.Unlock()

	t.publish(Event{
		Type:          EventStarted,
		TestID:        id,
		Configuration: cfg,
		Time:          time.Now(),
	})
}

// EvaluationPhase implements evaluator.Observer.
func (t *Tracker) EvaluationPhase(id int, phase evaluator.Phase, repetition, total int) {
	t.mu.Lock()
	at, ok := t.active[id]
	if ok {
		at.Phase = phase.String()
		at.Repetition = repetition
		at.Total = total
		t.active[id] = at
	}
	t.mu.Unlock()

	t.publish(Event{
		Type:       EventPhase,
		TestID:     id,
		Phase:      phase.String(),
		Repetition: repetition,
		Total:      total,
		Time:       time.Now(),
	})
}

// EvaluationFinished implements evaluator.Observer.
func (t *Tracker) EvaluationFinished(rec evaluator.TestRecord) {
	t.mu.Lock()
	delete(t.active, rec.ID)
	view := t.recordLocked(rec)
	t.mu.Unlock()

	t.publish(Event{
		Type:          EventFinished,
		TestID:        rec.ID,
		Configuration: view.Configuration,
		Success:       view.Success,
		Reason:        view.Reason,
		Aggregate:     view.Aggregate,
		Time:          time.Now(),
	})
}

// recordLocked appends a record view and updates counters and best.
func (t *Tracker) recordLocked(rec evaluator.TestRecord) Record {
	view := Record{
		ID:            rec.ID,
		Configuration: configuration(rec.Valuation),
		Success:       rec.Success(),
		Reason:        rec.Reason,
		Scores:        append([]float64(nil), rec.RawScores...),
		Aggregate:     rec.Aggregate,
		DurationSecs:  rec.Duration.Seconds(),
	}
	t.records = append(t.records, view)

	if !view.Success {
		t.failed++
		return view
	}
	if t.best == nil || t.direction.Better(view.Aggregate, t.best.Aggregate) {
		b := view
		t.best = &b
	}
	return view
}

// Snapshot returns the current status view.
func (t *Tracker) Snapshot() View {
	t.mu.RLock()
	defer t.mu.RUnlock()

	view := View{
		State:     t.state,
		Direction: t.direction.String(),
		Total:     t.total,
		Done:      len(t.records),
		Failed:    t.failed,
		StartedAt: t.started,
		ElapsedS:  time.Since(t.started).Seconds(),
	}
	if t.best != nil {
		b := *t.best
		view.Best = &b
	}
	for _, at := range t.active {
		view.Active = append(view.Active, at)
	}
	return view
}

// Records returns all finished records seen so far.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Record(nil), t.records...)
}

// Subscribe registers an event channel. The returned cancel function
// unregisters it and closes the channel.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Event, subBuffer)
	t.subs[id] = ch

	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}

// publish fans an event out without blocking; slow subscribers lose
// events rather than stalling evaluator goroutines.
func (t *Tracker) publish(ev Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func configuration(val space.Valuation) map[string]string {
	cfg := make(map[string]string, val.Len())
	for _, pair := range val.Pairs() {
		cfg[pair.Name] = pair.Value
	}
	return cfg
}

var _ evaluator.Observer = (*Tracker)(nil)
