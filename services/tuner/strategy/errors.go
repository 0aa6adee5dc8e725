// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package strategy

import "errors"

var (
	// ErrEmptyName indicates a registration without a name.
	ErrEmptyName = errors.New("strategy name is empty")

	// ErrAlreadyRegistered indicates a duplicate registration.
	ErrAlreadyRegistered = errors.New("strategy already registered")

	// ErrUnknownStrategy indicates a lookup for a name nobody registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)
