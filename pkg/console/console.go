// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package console provides user-facing plain-text output for flamingo.
//
// Everything the engine shows a human goes through a Console value that
// is constructed once and passed down explicitly. There is no package
// level writer state: components that print accept a *Console (or an
// io.Writer) at construction, which keeps output capturable in tests
// and lets a single run mirror its console to a transcript file.
//
// A Console distinguishes two kinds of output:
//
//   - lines: permanent messages (Printf, Println)
//   - progress: a transient status line that overwrites itself on
//     interactive terminals and degrades to ordinary lines elsewhere
//
// The transcript receives every permanent line plus the final state of
// each progress line, so a saved transcript reads like a quiet run.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Console writes user-facing output to a primary writer and an
// optional transcript. Safe for concurrent use.
type Console struct {
	mu          sync.Mutex
	out         io.Writer
	transcript  io.Writer
	interactive bool
	quiet       bool

	// progress holds the text of the currently displayed transient
	// line, empty when none is open.
	progress string
}

// Option configures a Console.
type Option func(*Console)

// WithTranscript mirrors output to w. The Console does not own w;
// callers close their own files.
func WithTranscript(w io.Writer) Option {
	return func(c *Console) { c.transcript = w }
}

// WithInteractive forces interactive rendering on or off, overriding
// terminal detection. Interactive consoles redraw progress in place
// with carriage returns.
func WithInteractive(interactive bool) Option {
	return func(c *Console) { c.interactive = interactive }
}

// WithQuiet suppresses the primary writer entirely. The transcript,
// when configured, still receives everything.
func WithQuiet(quiet bool) Option {
	return func(c *Console) { c.quiet = quiet }
}

// New creates a Console writing to out. When out is an *os.File on a
// terminal, progress rendering is interactive by default.
func New(out io.Writer, opts ...Option) *Console {
	c := &Console{out: out}
	if f, ok := out.(*os.File); ok {
		c.interactive = IsTerminal(f)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTerminal reports whether f is attached to a terminal (including
// Cygwin/MSYS pseudo-terminals).
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Printf writes a permanent formatted line. A trailing newline is
// added when format does not end with one.
func (c *Console) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgressLocked()
	c.writeLocked(msg)
	c.writeTranscriptLocked(msg)
}

// Println writes its arguments as one permanent line.
func (c *Console) Println(args ...any) {
	msg := fmt.Sprintln(args...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgressLocked()
	c.writeLocked(msg)
	c.writeTranscriptLocked(msg)
}

// Progress replaces the transient status line. On interactive
// terminals the line is redrawn in place; otherwise each update is
// printed as an ordinary line. The transcript records only the final
// state, written when EndProgress is called.
func (c *Console) Progress(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interactive {
		// Pad with spaces so a shorter update fully covers the
		// previous one.
		line := "\r" + msg
		if pad := len(c.progress) - len(msg); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		c.writeLocked(line)
	} else {
		c.writeLocked(msg + "\n")
	}
	c.progress = msg
}

// EndProgress closes an open progress line, committing its final
// state to the transcript.
func (c *Console) EndProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == "" {
		return
	}
	if c.interactive {
		c.writeLocked("\n")
	}
	c.writeTranscriptLocked(c.progress + "\n")
	c.progress = ""
}

// Interactive reports whether progress rendering is in-place.
func (c *Console) Interactive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interactive
}

// clearProgressLocked erases an in-place progress line so a permanent
// line does not splice into it. Callers must hold mu.
func (c *Console) clearProgressLocked() {
	if c.progress == "" || !c.interactive {
		return
	}
	c.writeLocked("\r" + strings.Repeat(" ", len(c.progress)) + "\r")
}

func (c *Console) writeLocked(s string) {
	if c.quiet || c.out == nil {
		return
	}
	io.WriteString(c.out, s)
}

func (c *Console) writeTranscriptLocked(s string) {
	if c.transcript == nil {
		return
	}
	io.WriteString(c.transcript, s)
}

// Discard returns a Console that writes nowhere. Useful as a default
// when a caller passes nil.
func Discard() *Console {
	return &Console{out: io.Discard, quiet: true}
}

// OpenTranscript opens (creating or truncating) a transcript file with
// conventional permissions. The caller owns the handle.
func OpenTranscript(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}
