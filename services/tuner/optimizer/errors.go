// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package optimizer

import "errors"

// ==============================================================================
// Sentinel Errors
// ==============================================================================

var (
	// ErrNilSpace indicates construction without a configuration
	// space.
	ErrNilSpace = errors.New("configuration space is required")

	// ErrNilEvaluator indicates construction without an evaluator.
	ErrNilEvaluator = errors.New("evaluator is required")

	// ErrAlreadyRun indicates a second Run call on the same
	// Optimizer. Each search gets a fresh instance.
	ErrAlreadyRun = errors.New("optimizer has already run")

	// ErrUnknownObjective indicates an objective string outside
	// min, max, min_time, max_time.
	ErrUnknownObjective = errors.New("unknown optimization objective")

	// ErrNoOptimum indicates an importance sweep request without a
	// successful best result to sweep around.
	ErrNoOptimum = errors.New("no successful result to sweep around")
)
