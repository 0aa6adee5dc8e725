// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates tuning files.
//
// A tuning file is YAML:
//
//	variables: "method{tiled: tile_x, tile_y; strip: strip_len}, threads"
//	values:
//	  method: [tiled, strip]
//	  tile_x: ["8", "16", "32"]
//	  tile_y: ["8", "16", "32"]
//	  strip_len: ["64", "128"]
//	  threads: ["128", "256"]
//	commands:
//	  compile: "make bench TILE_X=%tile_x%"
//	  test: "./bench --threads %threads% --run %%ID%%"
//	  clean: "make clean"
//	  timeout: 10m
//	testing:
//	  repeat: 5
//	  aggregator: med
//	  settle: 1s
//	scoring:
//	  optimal: min
//	output:
//	  log: results.csv
//	  importance: results_importance.csv
//	  transcript: tuning.log
//	tuning:
//	  strategy: exhaustive
//	  workers: 1
//	  failure_threshold: 0.5
//
// Everything but variables, values and commands.test has a default.
// Validation happens entirely up front; once Load returns, the
// settings are structurally sound and all selectors parse, so no
// configuration problem can surface mid-search.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
	"github.com/omariosc/autotuning-cuda/services/tuner/stats"
	"github.com/omariosc/autotuning-cuda/services/tuner/strategy"
	"github.com/omariosc/autotuning-cuda/services/tuner/vartree"
)

// settingsValidate is the validator instance for tuning settings.
var settingsValidate *validator.Validate

func init() {
	settingsValidate = validator.New()
}

// ==============================================================================
// DURATION
// ==============================================================================

// Duration is a time.Duration that unmarshals from either a duration
// string ("45s", "10m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %v", s, perr)
		}
		*d = Duration(dur)
		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration: want a string like \"10m\" or seconds")
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// Std returns the standard library form.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ==============================================================================
// SETTINGS
// ==============================================================================

// Settings is the fully parsed tuning file.
type Settings struct {
	// Variables is the tree declaration. See the vartree package for
	// the grammar.
	Variables string `json:"variables" yaml:"variables" validate:"required"`

	// Values maps each declared variable to its ordered domain.
	Values map[string][]string `json:"values" yaml:"values" validate:"required,min=1"`

	// Commands holds the shell command templates.
	Commands CommandSettings `json:"commands" yaml:"commands"`

	// Testing controls repetitions and aggregation.
	Testing TestingSettings `json:"testing" yaml:"testing"`

	// Scoring selects the optimization objective.
	Scoring ScoringSettings `json:"scoring" yaml:"scoring"`

	// Output holds result file locations.
	Output OutputSettings `json:"output" yaml:"output"`

	// Tuning controls the search loop itself.
	Tuning TuningSettings `json:"tuning" yaml:"tuning"`
}

// CommandSettings holds the three command templates. Templates may
// reference %%ID%% and %<variable>% tokens.
type CommandSettings struct {
	// Compile runs once per configuration before testing. Optional.
	Compile string `json:"compile" yaml:"compile"`

	// Test is the benchmark command. Required.
	Test string `json:"test" yaml:"test" validate:"required"`

	// Clean runs after testing regardless of outcome. Optional.
	Clean string `json:"clean" yaml:"clean"`

	// Timeout bounds each command execution. Zero means unbounded.
	Timeout Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
}

// TestingSettings controls measurement quality.
type TestingSettings struct {
	// Repeat is how many times the test command runs per
	// configuration.
	Repeat int `json:"repeat" yaml:"repeat" validate:"gte=0,lte=1000"`

	// Aggregator reduces repeated scores: min, max, med, avg.
	Aggregator string `json:"aggregator" yaml:"aggregator"`

	// Settle is the minimum interval between test launches.
	Settle Duration `json:"settle" yaml:"settle" validate:"gte=0"`
}

// ScoringSettings selects the objective.
type ScoringSettings struct {
	// Optimal is min, max, min_time or max_time. The _time forms
	// score by wall clock instead of parsed test output.
	Optimal string `json:"optimal" yaml:"optimal"`
}

// OutputSettings holds result locations.
type OutputSettings struct {
	// Log is the main result CSV, also the resume source.
	Log string `json:"log" yaml:"log"`

	// Importance is the sweep result CSV.
	Importance string `json:"importance" yaml:"importance"`

	// Transcript mirrors console output to a file when set.
	Transcript string `json:"transcript" yaml:"transcript"`
}

// TuningSettings controls the search loop.
type TuningSettings struct {
	// Strategy names the registered search driver.
	Strategy string `json:"strategy" yaml:"strategy"`

	// Workers bounds concurrent evaluations. Keep at 1 when tests
	// need a device exclusively.
	Workers int `json:"workers" yaml:"workers" validate:"gte=0,lte=256"`

	// FailureThreshold is the failure fraction above which a
	// completed run reports insufficient results.
	FailureThreshold float64 `json:"failure_threshold" yaml:"failure_threshold" validate:"gte=0,lte=1"`
}

// DefaultSettings returns the defaults applied under a loaded file.
func DefaultSettings() Settings {
	return Settings{
		Testing: TestingSettings{
			Repeat:     1,
			Aggregator: "med",
		},
		Scoring: ScoringSettings{
			Optimal: "min",
		},
		Output: OutputSettings{
			Log: "results.csv",
		},
		Tuning: TuningSettings{
			Strategy:         strategy.DefaultSearch,
			Workers:          1,
			FailureThreshold: 0.5,
		},
	}
}

// Load reads, defaults and validates a tuning file.
//
// Outputs:
//
//	*Settings - Ready to use; all selectors parse and the variable
//	            tree is structurally valid.
//	error - A *SettingsError (or wrapped parse error) naming the
//	        problem. Nothing has been executed.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tuning file: %w", err)
	}

	s := DefaultSettings()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing tuning file %s: %w", path, err)
	}

	s.EnsureDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EnsureDefaults fills derivable fields: zero repeat or workers
// become 1, and the importance log lands next to the main log when
// not set explicitly.
func (s *Settings) EnsureDefaults() {
	if s.Testing.Repeat == 0 {
		s.Testing.Repeat = 1
	}
	if s.Testing.Aggregator == "" {
		s.Testing.Aggregator = "med"
	}
	if s.Scoring.Optimal == "" {
		s.Scoring.Optimal = "min"
	}
	if s.Output.Log == "" {
		s.Output.Log = "results.csv"
	}
	if s.Output.Importance == "" {
		ext := filepath.Ext(s.Output.Log)
		s.Output.Importance = strings.TrimSuffix(s.Output.Log, ext) + "_importance" + ext
	}
	if s.Tuning.Strategy == "" {
		s.Tuning.Strategy = strategy.DefaultSearch
	}
	if s.Tuning.Workers == 0 {
		s.Tuning.Workers = 1
	}
	if s.Tuning.FailureThreshold == 0 {
		s.Tuning.FailureThreshold = 0.5
	}
}

// Validate checks structure, selectors, and the variable tree.
func (s *Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		return settingsError(err)
	}

	if _, err := stats.ParseAggregator(s.Testing.Aggregator); err != nil {
		return &SettingsError{
			Setting: "testing.aggregator",
			Detail:  fmt.Sprintf("%q is not one of min, max, med, avg", s.Testing.Aggregator),
		}
	}
	if _, _, err := optimizer.ParseObjective(s.Scoring.Optimal); err != nil {
		return &SettingsError{
			Setting: "scoring.optimal",
			Detail:  fmt.Sprintf("%q is not one of min, max, min_time, max_time", s.Scoring.Optimal),
		}
	}
	if _, err := strategy.Searches.Resolve(s.Tuning.Strategy); err != nil {
		return &SettingsError{
			Setting: "tuning.strategy",
			Detail:  err.Error(),
		}
	}

	for name, domain := range s.Values {
		seen := make(map[string]bool, len(domain))
		for _, value := range domain {
			if value == "" {
				return &SettingsError{
					Setting: "values." + name,
					Detail:  "empty values are not allowed; they cannot be told apart from inactive variables in the result log",
				}
			}
			if seen[value] {
				return &SettingsError{
					Setting: "values." + name,
					Detail:  fmt.Sprintf("value %q appears more than once", value),
				}
			}
			seen[value] = true
		}
	}

	if _, err := vartree.Parse(s.Variables, s.Values); err != nil {
		return &SettingsError{
			Setting: "variables",
			Detail:  err.Error(),
		}
	}
	return nil
}

// settingsError converts the first validator failure into a
// *SettingsError with a lowercased dotted path.
func settingsError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &SettingsError{Setting: "(file)", Detail: err.Error()}
	}
	fe := verrs[0]

	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	path = strings.ToLower(path)

	detail := fmt.Sprintf("failed %q validation", fe.Tag())
	switch fe.Tag() {
	case "required":
		detail = "is required"
	case "gte":
		detail = fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		detail = fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		detail = fmt.Sprintf("needs at least %s entries", fe.Param())
	}
	return &SettingsError{Setting: path, Detail: detail}
}

// ==============================================================================
// DERIVED CONFIGURATION
// ==============================================================================

// Tree parses the declared variable tree. Call after Validate.
func (s *Settings) Tree() (*vartree.Tree, error) {
	return vartree.Parse(s.Variables, s.Values)
}

// Space builds the configuration space. Call after Validate.
func (s *Settings) Space() (*space.Space, error) {
	tree, err := s.Tree()
	if err != nil {
		return nil, err
	}
	return space.New(tree), nil
}

// EvaluatorConfig maps the settings onto the evaluator.
func (s *Settings) EvaluatorConfig() (evaluator.Config, error) {
	agg, err := stats.ParseAggregator(s.Testing.Aggregator)
	if err != nil {
		return evaluator.Config{}, err
	}
	_, fom, err := optimizer.ParseObjective(s.Scoring.Optimal)
	if err != nil {
		return evaluator.Config{}, err
	}

	cfg := evaluator.DefaultConfig()
	cfg.CompileTemplate = s.Commands.Compile
	cfg.TestTemplate = s.Commands.Test
	cfg.CleanTemplate = s.Commands.Clean
	cfg.Repeat = s.Testing.Repeat
	cfg.FOM = fom
	cfg.Aggregator = agg
	cfg.Settle = s.Testing.Settle.Std()
	cfg.Workers = s.Tuning.Workers
	return cfg, nil
}

// OptimizerConfig maps the settings onto the optimizer.
func (s *Settings) OptimizerConfig() (optimizer.Config, error) {
	dir, _, err := optimizer.ParseObjective(s.Scoring.Optimal)
	if err != nil {
		return optimizer.Config{}, err
	}

	cfg := optimizer.DefaultConfig()
	cfg.Direction = dir
	cfg.FailureThreshold = s.Tuning.FailureThreshold
	return cfg, nil
}

// VariableNames returns the flattened declaration-order names, the
// column layout of result logs.
func (s *Settings) VariableNames() ([]string, error) {
	tree, err := s.Tree()
	if err != nil {
		return nil, err
	}
	return tree.Flatten(), nil
}

// SortedValueNames returns the declared value-map keys in sorted
// order, for deterministic reporting.
func (s *Settings) SortedValueNames() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
