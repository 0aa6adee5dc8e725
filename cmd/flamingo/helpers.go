// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/omariosc/autotuning-cuda/pkg/console"
	"github.com/omariosc/autotuning-cuda/pkg/logging"
	"github.com/omariosc/autotuning-cuda/services/tuner/history"
	"github.com/omariosc/autotuning-cuda/services/tuner/telemetry"
)

// newToolLogger builds the structured logger for one command. Stderr
// stays quiet unless --verbose; the file log under log_dir always
// gets everything at the configured level.
func newToolLogger(toolCfg ToolConfig, service string) *logging.Logger {
	level, _ := logging.ParseLevel(toolCfg.LogLevel)
	if verboseMode {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  toolCfg.LogDir,
		Service: service,
		Quiet:   !verboseMode,
	})
}

// newRunConsole builds the user-facing console, mirroring everything
// to the transcript file when one is configured. The returned cleanup
// closes the transcript.
func newRunConsole(transcriptPath string) (*console.Console, func(), error) {
	opts := []console.Option{
		console.WithInteractive(console.IsTerminal(os.Stdout) && !noColor),
		console.WithQuiet(quietMode),
	}
	cleanup := func() {}
	if transcriptPath != "" {
		f, err := console.OpenTranscript(transcriptPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, console.WithTranscript(f))
		cleanup = func() { f.Close() }
	}
	return console.New(os.Stdout, opts...), cleanup, nil
}

// telemetryConfig maps tool config onto the telemetry bootstrap.
// Unset fields keep the env-driven defaults.
func telemetryConfig(toolCfg ToolConfig) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if toolCfg.Telemetry.Traces != "" {
		cfg.TraceExporter = toolCfg.Telemetry.Traces
	}
	if toolCfg.Telemetry.Metrics != "" {
		cfg.MetricExporter = toolCfg.Telemetry.Metrics
	}
	if toolCfg.Telemetry.Endpoint != "" {
		cfg.OTLPEndpoint = toolCfg.Telemetry.Endpoint
	}
	return cfg
}

// openHistory opens the run archive under the tool's history
// directory. GC is left off; CLI opens are too short for it to fire.
func openHistory(toolCfg ToolConfig, logger *slog.Logger) (*history.Store, error) {
	cfg := history.DefaultConfig()
	cfg.Path = toolCfg.HistoryDir
	cfg.Logger = logger
	cfg.GCInterval = 0
	return history.Open(cfg)
}

// absPath resolves p for archived records; relative paths would rot
// as soon as the working directory changes.
func absPath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
