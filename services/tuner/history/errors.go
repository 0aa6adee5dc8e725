// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import "errors"

var (
	// ErrStoreClosed is returned when operations are called on a
	// closed store.
	ErrStoreClosed = errors.New("history store is closed")

	// ErrRunNotFound is returned when no archived run has the
	// requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNilSummary is returned when archiving a nil summary.
	ErrNilSummary = errors.New("summary must not be nil")

	// ErrMissingPath is returned when a persistent store has no
	// directory configured.
	ErrMissingPath = errors.New("path is required for persistent store")
)
