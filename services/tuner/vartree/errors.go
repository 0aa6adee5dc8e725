// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vartree

import (
	"errors"
	"fmt"
)

// ==============================================================================
// Sentinel Errors
// ==============================================================================

var (
	// ErrSyntax indicates the declaration string violates the grammar.
	ErrSyntax = errors.New("variable tree syntax error")

	// ErrEmptyTree indicates a declaration with no variables.
	ErrEmptyTree = errors.New("variable tree declares no variables")

	// ErrDuplicateVariable indicates the same name declared twice.
	ErrDuplicateVariable = errors.New("duplicate variable name")

	// ErrInvalidName indicates a variable name outside [A-Za-z_][A-Za-z0-9_]*.
	ErrInvalidName = errors.New("invalid variable name")

	// ErrMissingDomain indicates a declared variable with no domain entry.
	ErrMissingDomain = errors.New("variable has no value list")

	// ErrEmptyDomain indicates a domain entry with zero values.
	ErrEmptyDomain = errors.New("variable has an empty value list")

	// ErrUndeclaredDomain indicates a value list for a variable that the
	// tree never declares. Almost always a typo in one or the other.
	ErrUndeclaredDomain = errors.New("value list for undeclared variable")

	// ErrUnknownActivation indicates a branch value that is not a member
	// of the branching variable's domain, so the subtree could never
	// activate.
	ErrUnknownActivation = errors.New("activation value not in variable's value list")
)

// ==============================================================================
// Typed Errors
// ==============================================================================

// ParseError reports a grammar violation with its byte offset in the
// declaration string.
type ParseError struct {
	// Offset is the zero-based byte position where parsing failed.
	Offset int

	// Detail describes what was expected or found.
	Detail string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrSyntax, e.Offset, e.Detail)
}

// Unwrap returns ErrSyntax so errors.Is matching works.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}
