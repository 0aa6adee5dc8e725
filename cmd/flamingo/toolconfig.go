// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ToolConfig holds workstation-level defaults: where logs and the run
// archive live, and which external services to talk to. It is
// distinct from the tuning file, which describes one tuning problem.
//
// Loaded from <home>/config.yaml under the flamingo home directory,
// overridable per-key with FLAMINGO_* environment variables, e.g.
// FLAMINGO_INFLUX_URL or FLAMINGO_LOG_LEVEL.
type ToolConfig struct {
	// LogLevel is the minimum level for structured logs: debug,
	// info, warn or error.
	LogLevel string `mapstructure:"log_level"`

	// LogDir receives per-day JSON log files. Empty disables file
	// logging.
	LogDir string `mapstructure:"log_dir"`

	// HistoryDir is the BadgerDB directory for archived runs.
	HistoryDir string `mapstructure:"history_dir"`

	// StatusAddr, when set, serves live progress on this address for
	// every run. The --status flag overrides it per run.
	StatusAddr string `mapstructure:"status_addr"`

	Influx struct {
		URL    string `mapstructure:"url"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influx"`

	GCS struct {
		Bucket  string `mapstructure:"bucket"`
		KeyPath string `mapstructure:"key_path"`
	} `mapstructure:"gcs"`

	Telemetry struct {
		// Traces and Metrics name exporters: none, stdout, otlp
		// (traces) or prometheus (metrics).
		Traces   string `mapstructure:"traces"`
		Metrics  string `mapstructure:"metrics"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"telemetry"`
}

// flamingoHome returns the tool's state directory, FLAMINGO_HOME or
// ~/.flamingo.
func flamingoHome() string {
	if dir := os.Getenv("FLAMINGO_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flamingo"
	}
	return filepath.Join(home, ".flamingo")
}

// loadToolConfig reads the tool config from the flamingo home
// directory. A missing file is fine; defaults and env apply.
func loadToolConfig() (ToolConfig, error) {
	return loadToolConfigFrom(filepath.Join(flamingoHome(), "config.yaml"))
}

func loadToolConfigFrom(path string) (ToolConfig, error) {
	var cfg ToolConfig

	v := viper.New()
	// Every key needs a default so AutomaticEnv can see it.
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", filepath.Join(flamingoHome(), "logs"))
	v.SetDefault("history_dir", filepath.Join(flamingoHome(), "history"))
	v.SetDefault("status_addr", "")
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.key_path", "")
	v.SetDefault("telemetry.traces", "")
	v.SetDefault("telemetry.metrics", "")
	v.SetDefault("telemetry.endpoint", "")

	v.SetEnvPrefix("FLAMINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading tool config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling tool config %s: %w", path, err)
	}
	return cfg, nil
}
