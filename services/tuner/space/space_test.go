// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package space

import (
	"reflect"
	"testing"

	"github.com/omariosc/autotuning-cuda/services/tuner/vartree"
)

func mustTree(t *testing.T, decl string, domains map[string][]string) *vartree.Tree {
	t.Helper()
	tree, err := vartree.Parse(decl, domains)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", decl, err)
	}
	return tree
}

func TestCount_FlatTreeIsCrossProduct(t *testing.T) {
	tests := []struct {
		name    string
		decl    string
		domains map[string][]string
		want    int
	}{
		{
			name: "two by two",
			decl: "threads, blocks",
			domains: map[string][]string{
				"threads": {"32", "64"},
				"blocks":  {"16", "32"},
			},
			want: 4,
		},
		{
			name: "three by two by four",
			decl: "a, b, c",
			domains: map[string][]string{
				"a": {"1", "2", "3"},
				"b": {"x", "y"},
				"c": {"p", "q", "r", "s"},
			},
			want: 24,
		},
		{
			name:    "single variable single value",
			decl:    "a",
			domains: map[string][]string{"a": {"only"}},
			want:    1,
		},
		{
			name: "single valued dimension keeps count",
			decl: "a, fixed",
			domains: map[string][]string{
				"a":     {"1", "2"},
				"fixed": {"const"},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(mustTree(t, tt.decl, tt.domains))
			if got := s.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
			if got := len(s.All()); got != tt.want {
				t.Errorf("len(All()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCount_ConditionalPrunesCrossProduct(t *testing.T) {
	// blocks only exists when threads=64: one valuation for threads=32
	// plus two for threads=64.
	s := New(mustTree(t, "threads{64: blocks}", map[string][]string{
		"threads": {"32", "64"},
		"blocks":  {"16", "32"},
	}))

	if got := s.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	naive := 2 * 2
	if s.Count() >= naive {
		t.Errorf("conditional count %d not below naive cross-product %d", s.Count(), naive)
	}
}

func TestCount_MultiBranchConditional(t *testing.T) {
	// method=tiled opens a 2x2 subtree, method=strip a 2-wide one:
	// 4 + 2 = 6, times 2 for threads.
	s := New(mustTree(t,
		"method{tiled: tile_x, tile_y; strip: strip_len}, threads",
		map[string][]string{
			"method":    {"tiled", "strip"},
			"tile_x":    {"8", "16"},
			"tile_y":    {"8", "16"},
			"strip_len": {"64", "128"},
			"threads":   {"128", "256"},
		}))

	if got := s.Count(); got != 12 {
		t.Errorf("Count() = %d, want 12", got)
	}
	if got := len(s.All()); got != 12 {
		t.Errorf("len(All()) = %d, want 12", got)
	}
}

func TestEach_DeterministicOrder(t *testing.T) {
	s := New(mustTree(t, "threads, blocks", map[string][]string{
		"threads": {"32", "64"},
		"blocks":  {"16", "32"},
	}))

	want := []string{
		"threads=32, blocks=16",
		"threads=32, blocks=32",
		"threads=64, blocks=16",
		"threads=64, blocks=32",
	}
	var got []string
	s.Each(func(v Valuation) bool {
		got = append(got, v.String())
		return true
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("enumeration order = %v, want %v", got, want)
	}
}

func TestEach_RestartableYieldsIdenticalSequence(t *testing.T) {
	s := New(mustTree(t, "a{on: b}, c", map[string][]string{
		"a": {"on", "off"},
		"b": {"1", "2"},
		"c": {"x", "y"},
	}))

	keys := func() []string {
		var out []string
		s.Each(func(v Valuation) bool {
			out = append(out, v.Key())
			return true
		})
		return out
	}

	first, second := keys(), keys()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-enumeration differs:\n%v\n%v", first, second)
	}
	if len(first) != s.Count() {
		t.Errorf("enumerated %d, Count() = %d", len(first), s.Count())
	}
}

func TestEach_ConditionalValuationsOmitInactive(t *testing.T) {
	s := New(mustTree(t, "threads{64: blocks}", map[string][]string{
		"threads": {"32", "64"},
		"blocks":  {"16", "32"},
	}))

	var got []string
	s.Each(func(v Valuation) bool {
		got = append(got, v.String())
		return true
	})

	want := []string{
		"threads=32",
		"threads=64, blocks=16",
		"threads=64, blocks=32",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("valuations = %v, want %v", got, want)
	}
}

func TestEach_NestedChildrenPrecedeNextSibling(t *testing.T) {
	s := New(mustTree(t, "a{on: b{deep: c}}, d", map[string][]string{
		"a": {"on"},
		"b": {"deep"},
		"c": {"1", "2"},
		"d": {"x"},
	}))

	var got []string
	s.Each(func(v Valuation) bool {
		got = append(got, v.String())
		return true
	})

	want := []string{
		"a=on, b=deep, c=1, d=x",
		"a=on, b=deep, c=2, d=x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("valuations = %v, want %v", got, want)
	}
}

func TestEach_EarlyStop(t *testing.T) {
	s := New(mustTree(t, "a", map[string][]string{
		"a": {"1", "2", "3", "4"},
	}))

	var seen int
	s.Each(func(v Valuation) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("visited %d valuations after stop, want 2", seen)
	}
}

func TestAll_LengthMatchesCount(t *testing.T) {
	s := New(mustTree(t, "method{tiled: tile_x; strip: strip_len}", map[string][]string{
		"method":    {"tiled", "strip", "off"},
		"tile_x":    {"8", "16", "32"},
		"strip_len": {"64", "128"},
	}))

	// tiled: 3, strip: 2, off: 1.
	if got := s.Count(); got != 6 {
		t.Errorf("Count() = %d, want 6", got)
	}
	if got := len(s.All()); got != s.Count() {
		t.Errorf("len(All()) = %d, Count() = %d", got, s.Count())
	}
}
