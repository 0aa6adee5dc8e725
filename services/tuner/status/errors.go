// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package status

import "errors"

var (
	// ErrNilTracker is returned when a server is built without a
	// tracker to serve from.
	ErrNilTracker = errors.New("tracker must not be nil")

	// ErrMissingAddr is returned when no listen address is configured.
	ErrMissingAddr = errors.New("listen address is required")
)
