// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history archives completed tuning runs in an embedded
// BadgerDB store.
//
// Each finished run leaves one RunSummary behind, keyed by start time
// so listing is chronological without a secondary index. The archive
// is an operator convenience ("what did I tune last month, and what
// won"), not a resume source; resuming works from the CSV result log
// alone.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("flamingo.tuner")

// runPrefix is the key prefix for archived runs. Keys look like
// run/<zero-padded unix nanos>/<uuid>, so lexicographic key order is
// chronological start order.
const runPrefix = "run/"

// ==============================================================================
// RUN SUMMARY
// ==============================================================================

// RunSummary is the archived record of one tuning run.
type RunSummary struct {
	// ID uniquely identifies the run. Assigned at archive time when
	// empty.
	ID string `json:"id"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// State is the terminal optimizer state, e.g. "succeeded".
	State string `json:"state"`

	// Direction is "minimize" or "maximize".
	Direction string `json:"direction"`

	// Best holds the winning assignment when HasBest is true.
	Best      map[string]string `json:"best,omitempty"`
	BestScore float64           `json:"best_score"`
	HasBest   bool              `json:"has_best"`

	// Tested and Failed count evaluated configurations.
	Tested int `json:"tested"`
	Failed int `json:"failed"`

	// SpaceSize is the number of valid configurations in the space.
	SpaceSize int `json:"space_size"`

	// ConfigPath and LogPath locate the run's inputs and outputs.
	ConfigPath string `json:"config_path,omitempty"`
	LogPath    string `json:"log_path,omitempty"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *RunSummary) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ==============================================================================
// CONFIGURATION
// ==============================================================================

// Config holds configuration for the history store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB events. If nil, BadgerDB's
	// internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and
// five-minute GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// ==============================================================================
// STORE
// ==============================================================================

// Store is the run archive.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens (or creates) the archive.
//
// Outputs:
//   - *Store: The open store. Caller must Close it.
//   - error: ErrMissingPath for a persistent store without a path, or
//     the underlying open failure.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrMissingPath
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger.With(slog.String("component", "history")),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops garbage collection and closes the database. Safe to
// call once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// Nil means a log file was rewritten; ErrNoRewrite means
			// there was nothing worth collecting.
			err := s.db.RunValueLogGC(ratio)
			switch {
			case err == nil:
				s.logger.Debug("history value log GC completed")
			case err != badger.ErrNoRewrite:
				s.logger.Warn("history value log GC error",
					slog.String("error", err.Error()))
			}
		}
	}
}

// Archive stores a completed run.
//
// Description:
//
//	Fills in the ID (uuid) and FinishedAt when unset, then writes the
//	summary under run/<start-nanos>/<id>.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Archive(ctx context.Context, sum *RunSummary) error {
	if sum == nil {
		return ErrNilSummary
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = time.Now().UTC()
	}
	if sum.StartedAt.IsZero() {
		sum.StartedAt = sum.FinishedAt
	}

	_, span := tracer.Start(ctx, "history.Archive")
	span.SetAttributes(
		attribute.String("run.id", sum.ID),
		attribute.String("run.state", sum.State),
	)
	defer span.End()

	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}

	key := runKey(sum.StartedAt, sum.ID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("archive run %s: %w", sum.ID, err)
	}

	s.logger.Debug("run archived",
		slog.String("id", sum.ID),
		slog.String("state", sum.State),
		slog.Int("tested", sum.Tested))
	return nil
}

// Get returns the archived run with the given id.
//
// Outputs:
//   - *RunSummary: The run.
//   - error: ErrRunNotFound when no archived run matches.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Get(ctx context.Context, id string) (*RunSummary, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	// The archive is small and keyed by time, so a lookup by id is a
	// prefix scan rather than a second index.
	var found *RunSummary
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if keyID(it.Item().Key()) != id {
				continue
			}
			return it.Item().Value(func(val []byte) error {
				var sum RunSummary
				if err := json.Unmarshal(val, &sum); err != nil {
					return fmt.Errorf("decode run summary: %w", err)
				}
				found = &sum
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return found, nil
}

// List returns archived runs, newest start first. A limit of zero
// returns everything.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) List(ctx context.Context, limit int) ([]*RunSummary, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var runs []*RunSummary
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible run key, then walk backwards.
		seek := append([]byte(runPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		prefix := []byte(runPrefix)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var sum RunSummary
				if err := json.Unmarshal(val, &sum); err != nil {
					return fmt.Errorf("decode run summary: %w", err)
				}
				runs = append(runs, &sum)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Prune deletes runs that started more than maxAge ago.
//
// Outputs:
//   - int: Number of runs deleted.
//   - error: The first delete failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	_, span := tracer.Start(ctx, "history.Prune")
	defer span.End()

	cutoff := time.Now().Add(-maxAge).UnixNano()

	var stale [][]byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			nanos, ok := keyNanos(it.Item().Key())
			if !ok || nanos >= cutoff {
				continue
			}
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return 0, fmt.Errorf("prune run: %w", err)
		}
	}

	if len(stale) > 0 {
		s.logger.Info("history pruned",
			slog.Int("deleted", len(stale)),
			slog.Duration("max_age", maxAge))
	}
	span.SetAttributes(attribute.Int("deleted", len(stale)))
	return len(stale), nil
}

// Len returns the number of archived runs.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	count := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// view runs a read-only transaction with an upfront context check.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// ==============================================================================
// KEYS
// ==============================================================================

// runKey builds run/<zero-padded nanos>/<id>. Zero padding keeps the
// decimal timestamps in lexicographic order.
func runKey(start time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, start.UnixNano(), id))
}

// keyNanos extracts the start timestamp from a run key.
func keyNanos(key []byte) (int64, bool) {
	parts := strings.SplitN(string(key), "/", 3)
	if len(parts) != 3 {
		return 0, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return nanos, true
}

// keyID extracts the run id from a run key.
func keyID(key []byte) string {
	parts := strings.SplitN(string(key), "/", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
