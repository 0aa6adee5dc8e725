// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
)

// ==============================================================================
// Sentinel Errors
// ==============================================================================

var (
	// ErrInvalidSettings indicates a tuning file that must be fixed
	// before any command can run. Nothing is executed after this.
	ErrInvalidSettings = errors.New("invalid tuning settings")
)

// ==============================================================================
// Typed Errors
// ==============================================================================

// SettingsError pinpoints the offending setting so the message is
// actionable rather than a bare validation dump.
type SettingsError struct {
	// Setting is the dotted path of the field, e.g. "testing.repeat".
	Setting string

	// Detail explains what is wrong and what is accepted.
	Detail string
}

// Error implements the error interface.
func (e *SettingsError) Error() string {
	return fmt.Sprintf("setting %s: %s", e.Setting, e.Detail)
}

// Unwrap returns ErrInvalidSettings for errors.Is checks.
func (e *SettingsError) Unwrap() error {
	return ErrInvalidSettings
}
