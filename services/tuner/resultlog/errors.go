// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultlog

import (
	"errors"
	"fmt"
	"strings"
)

// ==============================================================================
// Sentinel Errors
// ==============================================================================

var (
	// ErrHeaderMismatch indicates a log file whose header does not
	// match the current tuning setup. Resuming from it would assign
	// results to the wrong variables.
	ErrHeaderMismatch = errors.New("result log header does not match the tuning setup")

	// ErrMalformedRow indicates a data row that could not be parsed.
	ErrMalformedRow = errors.New("malformed result log row")
)

// ==============================================================================
// Typed Errors
// ==============================================================================

// HeaderError reports the expected and actual header of a rejected
// log file.
type HeaderError struct {
	// Path is the log file.
	Path string

	// Got is the header found in the file.
	Got []string

	// Want is the header the current setup produces.
	Want []string
}

// Error implements the error interface.
func (e *HeaderError) Error() string {
	return fmt.Sprintf("result log %s: header [%s] does not match expected [%s]",
		e.Path, strings.Join(e.Got, ","), strings.Join(e.Want, ","))
}

// Unwrap returns ErrHeaderMismatch for errors.Is checks.
func (e *HeaderError) Unwrap() error {
	return ErrHeaderMismatch
}

// RowError reports the line number of an unparsable data row.
type RowError struct {
	// Path is the log file.
	Path string

	// Line is the 1-based line number, counting the header.
	Line int

	// Detail describes what failed to parse.
	Detail string
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("result log %s line %d: %s", e.Path, e.Line, e.Detail)
}

// Unwrap returns ErrMalformedRow for errors.Is checks.
func (e *RowError) Unwrap() error {
	return ErrMalformedRow
}
