// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command flamingo tunes the parameters of compiled programs by
// measurement.
//
// A tuning file declares variables, their candidate values and the
// shell commands that compile, benchmark and clean one configuration.
// Flamingo walks the configuration space, runs the commands, parses a
// figure of merit from the test output (or times the test) and reports
// the best configuration it found, then sweeps each variable around
// the optimum to show which ones matter.
//
// Usage:
//
//	flamingo tune tuning.yaml
//	flamingo tune tuning.yaml --resume results.csv
//	flamingo tune tuning.yaml --status 127.0.0.1:8321
//	flamingo space tuning.yaml --watch
//	flamingo history list
//	flamingo export tuning.yaml --run <run-id>
//	flamingo archive <run-id> --bucket my-bucket
//
// Tool-level defaults (log directory, status address, InfluxDB and GCS
// endpoints) come from ~/.flamingo/config.yaml and FLAMINGO_* env
// vars. The tuning file itself is always passed explicitly.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
