// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"time"

	"github.com/omariosc/autotuning-cuda/services/tuner/stats"
)

// Config controls how configurations are evaluated.
//
// Use DefaultConfig() and override what you need. Validate clamps
// out-of-range numeric fields to safe values and errors only on
// problems that cannot be defaulted away.
type Config struct {
	// CompileTemplate is the optional build command, run once per
	// configuration before testing. Nonzero exit fails the whole
	// configuration.
	CompileTemplate string

	// TestTemplate is the benchmark command. Required. Run Repeat
	// times per configuration.
	TestTemplate string

	// CleanTemplate is the optional cleanup command, run after testing
	// whether or not it succeeded. Its exit status is ignored.
	CleanTemplate string

	// Repeat is how many times the test command runs per
	// configuration. Values below 1 clamp to 1.
	Repeat int

	// FOM selects the measurement source: parsed output or wall
	// clock.
	FOM FOMMode

	// Aggregator reduces repeated measurements to one score.
	Aggregator stats.Aggregator

	// Settle is the minimum interval between test launches, giving
	// shared hardware time to quiesce between repetitions. Zero
	// disables pacing.
	Settle time.Duration

	// Workers bounds concurrent evaluations. 1 (the default) is fully
	// sequential, which is correct for tests that need exclusive use
	// of a device. Values below 1 clamp to 1.
	Workers int
}

// DefaultConfig returns the sequential, single-repetition defaults.
func DefaultConfig() Config {
	return Config{
		Repeat:     1,
		FOM:        FOMCustom,
		Aggregator: stats.AggregateMedian,
		Workers:    1,
	}
}

// Validate clamps numeric fields and rejects configurations with no
// test command.
func (c *Config) Validate() error {
	if c.TestTemplate == "" {
		return ErrMissingTestCommand
	}
	if c.Repeat < 1 {
		c.Repeat = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	return nil
}
