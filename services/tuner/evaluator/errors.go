// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"errors"
	"fmt"
)

// ==============================================================================
// Sentinel Errors
// ==============================================================================

var (
	// ErrMissingTestCommand indicates a configuration without the one
	// mandatory command template.
	ErrMissingTestCommand = errors.New("test command is required")

	// ErrNilRunner indicates construction without a process runner.
	ErrNilRunner = errors.New("process runner is required")

	// ErrCommandTimeout indicates a command exceeded its deadline and
	// was killed.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrLaunch indicates a command could not be started at all, as
	// opposed to running and exiting nonzero.
	ErrLaunch = errors.New("command launch failed")

	// ErrUnparsableFOM indicates test output whose last non-empty line
	// is not a number.
	ErrUnparsableFOM = errors.New("no parsable figure of merit in output")
)

// ==============================================================================
// Typed Errors
// ==============================================================================

// CommandError carries the context of a failed external command for
// logging and failure summaries.
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the process exit status, -1 when it never ran.
	ExitCode int

	// Output is the captured (possibly truncated) combined output.
	Output string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error {
	return e.Err
}
