// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// ==============================================================================
// RUNNER
// ==============================================================================

// Result captures one external command execution.
type Result struct {
	// Stdout is the captured standard output, possibly truncated.
	Stdout string

	// Stderr is the captured standard error, possibly truncated.
	Stderr string

	// ExitCode is the process exit status; -1 when the process never
	// ran or was killed.
	ExitCode int

	// Duration is the wall-clock time of the run. In wall-clock FOM
	// mode this is the measurement itself.
	Duration time.Duration

	// Truncated reports whether output capture hit the size limit.
	Truncated bool

	// TimedOut reports whether the command was killed at its deadline.
	TimedOut bool
}

// Runner executes rendered command lines. The production
// implementation is ShellRunner; tests substitute stubs.
//
// The error return covers launch failures and timeouts only. A
// command that runs to completion with a nonzero exit status returns
// a nil error with the status in Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, command string) (*Result, error)
}

// ShellRunner executes commands through a shell so tuning templates
// can use pipes, redirects, and environment expansion.
type ShellRunner struct {
	// Shell is the interpreter, default "/bin/sh".
	Shell string

	// WorkingDir is the directory commands run in. Empty means the
	// process working directory.
	WorkingDir string

	// Timeout bounds each command. Zero means no deadline beyond the
	// caller's context.
	Timeout time.Duration

	// MaxOutput caps captured bytes per stream, default 1 MiB.
	// Kernels under test can be arbitrarily chatty.
	MaxOutput int

	// Logger receives per-command debug records. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// defaultMaxOutput bounds captured output per stream.
const defaultMaxOutput = 1 << 20

// NewShellRunner returns a ShellRunner with defaults applied.
func NewShellRunner(logger *slog.Logger) *ShellRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellRunner{
		Shell:     "/bin/sh",
		MaxOutput: defaultMaxOutput,
		Logger:    logger.With(slog.String("component", "runner")),
	}
}

// Run executes one command line with timeout and bounded output
// capture.
//
// Outputs:
//
//	*Result - Always non-nil, even on error, so callers can log
//	          whatever output was captured.
//	error - ErrCommandTimeout when the deadline killed the process;
//	        a wrapped ErrLaunch when it could not start. Nonzero exit
//	        is not an error here; callers decide what it means per
//	        phase.
func (r *ShellRunner) Run(ctx context.Context, command string) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	maxOutput := r.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	if r.WorkingDir != "" {
		cmd.Dir = r.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	logger.Debug("executing command",
		slog.String("command", command),
		slog.Duration("timeout", r.Timeout),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  elapsed,
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		logger.Warn("command timed out",
			slog.String("command", command),
			slog.Duration("timeout", r.Timeout),
		)
		return result, ErrCommandTimeout
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
	} else {
		result.ExitCode = 0
	}

	return result, nil
}

var _ Runner = (*ShellRunner)(nil)

// ==============================================================================
// LIMITED WRITER
// ==============================================================================

// limitedWriter wraps a writer with a size limit, silently discarding
// the excess while reporting full writes to the producing process.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil
	}

	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return len(p), err
}
