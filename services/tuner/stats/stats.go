// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats reduces repeated figure-of-merit samples to a single
// score per configuration.
package stats

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoSamples indicates a reduction over an empty sample set.
var ErrNoSamples = errors.New("no samples to aggregate")

// ErrUnknownAggregator indicates an unrecognized aggregator selector.
var ErrUnknownAggregator = errors.New("unknown aggregator")

// Aggregator selects how repeated measurements collapse into one
// score. Benchmarks with warm-up noise usually want AggregateMin for
// time-like FOMs; noisy custom FOMs usually want AggregateMedian.
type Aggregator int

const (
	// AggregateMedian takes the middle sample; for an even number of
	// samples, the mean of the two central ones.
	AggregateMedian Aggregator = iota

	// AggregateMin takes the smallest sample.
	AggregateMin

	// AggregateMax takes the largest sample.
	AggregateMax

	// AggregateMean takes the arithmetic mean.
	AggregateMean
)

// String returns the selector spelling used in settings files.
func (a Aggregator) String() string {
	switch a {
	case AggregateMedian:
		return "med"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	case AggregateMean:
		return "avg"
	default:
		return "unknown"
	}
}

// ParseAggregator converts a settings selector (min|max|med|avg) to
// an Aggregator.
func ParseAggregator(s string) (Aggregator, error) {
	switch s {
	case "med", "median":
		return AggregateMedian, nil
	case "min":
		return AggregateMin, nil
	case "max":
		return AggregateMax, nil
	case "avg", "mean":
		return AggregateMean, nil
	default:
		return AggregateMedian, fmt.Errorf("%w: %q", ErrUnknownAggregator, s)
	}
}

// Reduce collapses samples to one score. The input slice is not
// modified. Reducing zero samples returns ErrNoSamples; every
// aggregator maps a single sample to itself.
func (a Aggregator) Reduce(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}

	switch a {
	case AggregateMin:
		min := samples[0]
		for _, s := range samples[1:] {
			if s < min {
				min = s
			}
		}
		return min, nil

	case AggregateMax:
		max := samples[0]
		for _, s := range samples[1:] {
			if s > max {
				max = s
			}
		}
		return max, nil

	case AggregateMean:
		sum := 0.0
		for _, s := range samples {
			sum += s
		}
		return sum / float64(len(samples)), nil

	case AggregateMedian:
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			// True floating-point mean of the two central samples.
			return (sorted[mid-1] + sorted[mid]) / 2.0, nil
		}
		return sorted[mid], nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownAggregator, int(a))
	}
}

// FailureRate returns failed/total, or 0 for an empty run.
func FailureRate(failed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
