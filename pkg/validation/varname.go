// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that
// end up in subprocess command lines, Flux queries, or object storage
// paths. Using these validators prevents injection attacks (command
// injection, Flux injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// varNamePattern matches valid tunable variable names.
// Allows: a letter or underscore, then letters, digits, underscores.
// The restriction keeps %name% substitution markers unambiguous inside
// command templates.
var varNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// runIDPattern matches run identifiers: UUIDs and short human-chosen
// ids. Allows: letters, digits, dots, underscores, hyphens after a
// leading letter or digit. Max length: 64 characters.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateVarName validates a tunable variable name before it is used
// as a substitution marker in shell command templates and as a column
// name in result logs.
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateVarName(name); err != nil {
//	    return nil, fmt.Errorf("invalid variable: %w", err)
//	}
//	// Safe to substitute into a command template
func ValidateVarName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name cannot be empty")
	}
	if !varNamePattern.MatchString(name) {
		return fmt.Errorf("invalid variable name: %q (must be a letter or underscore followed by letters, digits or underscores)", name)
	}
	return nil
}

// ValidateRunID validates a run identifier to prevent Flux injection.
//
// Run ids are interpolated into Flux query filters and become GCS
// object path segments, so they are restricted to a safe character
// set. Generated ids are UUIDs and always pass.
//
// Returns an error if the id is invalid.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}
	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the trimmed id if valid, or an error if invalid.
//
// Use this on ids typed or pasted by a user:
//
//	runID, err := validation.SanitizeRunID(userInput)
//	if err != nil {
//	    return err
//	}
//	// runID is trimmed and validated
func SanitizeRunID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateRunID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
