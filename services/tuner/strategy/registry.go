// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a named collection of strategies of one capability.
//
// Description:
//
//	Each capability (search driver, evaluator builder) gets its own
//	typed registry, so a lookup can never hand back a value of the
//	wrong kind. Registration normally happens in init functions;
//	lookups happen once at startup when the tuning file is resolved.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry[T any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]T
}

// NewRegistry creates an empty registry for one capability.
//
// Inputs:
//   - kind: Human-readable capability name used in error messages,
//     e.g. "optimizer".
//
// Outputs:
//   - *Registry[T]: The new registry. Never nil.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
	}
}

// Register adds a strategy under the given name.
//
// Outputs:
//   - error: nil on success, ErrEmptyName for an empty name,
//     ErrAlreadyRegistered when the name is taken.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) Register(name string, value T) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s %q", ErrAlreadyRegistered, r.kind, name)
	}
	r.entries[name] = value
	return nil
}

// MustRegister registers a strategy and panics on error.
//
// Description:
//
//	Convenience for registration during initialization. Should only
//	be used during startup, not at runtime.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) MustRegister(name string, value T) {
	if err := r.Register(name, value); err != nil {
		panic(fmt.Sprintf("strategy: failed to register %s %q: %v", r.kind, name, err))
	}
}

// Get retrieves a strategy by name.
//
// Outputs:
//   - T: The strategy, or the zero value if not found.
//   - bool: true if found.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, exists := r.entries[name]
	return value, exists
}

// Resolve retrieves a strategy by name, with an error that names the
// registered alternatives when the lookup fails.
//
// Outputs:
//   - T: The strategy. Zero value on error.
//   - error: nil on success, wraps ErrUnknownStrategy otherwise.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) Resolve(name string) (T, error) {
	value, ok := r.Get(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q (registered: %s)",
			ErrUnknownStrategy, r.kind, name, strings.Join(r.List(), ", "))
	}
	return value, nil
}

// List returns all registered names.
//
// Outputs:
//   - []string: Sorted list of strategy names.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered strategies.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
