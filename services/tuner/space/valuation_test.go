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
)

func TestValuation_GetHasLen(t *testing.T) {
	v := NewValuation(Pair{"threads", "32"}, Pair{"blocks", "16"})

	if got, ok := v.Get("threads"); !ok || got != "32" {
		t.Errorf("Get(threads) = (%q, %v)", got, ok)
	}
	if _, ok := v.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}
	if !v.Has("blocks") || v.Has("missing") {
		t.Error("Has() misreported membership")
	}
	if v.Len() != 2 {
		t.Errorf("Len() = %d, want 2", v.Len())
	}
}

func TestNewValuation_RepeatedNameKeepsLast(t *testing.T) {
	v := NewValuation(Pair{"a", "1"}, Pair{"a", "2"})
	if got, _ := v.Get("a"); got != "2" {
		t.Errorf("Get(a) = %q, want last assignment", got)
	}
	if v.Len() != 1 {
		t.Errorf("Len() = %d, want 1", v.Len())
	}
}

func TestValuation_KeyOrderIndependent(t *testing.T) {
	a := NewValuation(Pair{"threads", "32"}, Pair{"blocks", "16"})
	b := NewValuation(Pair{"blocks", "16"}, Pair{"threads", "32"})

	if a.Key() != b.Key() {
		t.Errorf("keys differ for equal valuations: %q vs %q", a.Key(), b.Key())
	}
	if !a.Equal(b) || !b.Equal(a) {
		t.Error("Equal() is order-sensitive")
	}
}

func TestValuation_KeyDistinguishesAmbiguousValues(t *testing.T) {
	// Raw concatenation would confuse these; quoting must not.
	a := NewValuation(Pair{"a", `1",b="2`})
	b := NewValuation(Pair{"a", "1"}, Pair{"b", "2"})

	if a.Key() == b.Key() {
		t.Errorf("distinct valuations share key %q", a.Key())
	}
}

func TestValuation_EqualMismatches(t *testing.T) {
	base := NewValuation(Pair{"a", "1"}, Pair{"b", "2"})

	tests := []struct {
		name  string
		other Valuation
	}{
		{"different value", NewValuation(Pair{"a", "1"}, Pair{"b", "3"})},
		{"missing variable", NewValuation(Pair{"a", "1"})},
		{"extra variable", NewValuation(Pair{"a", "1"}, Pair{"b", "2"}, Pair{"c", "3"})},
		{"different variable", NewValuation(Pair{"a", "1"}, Pair{"c", "2"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if base.Equal(tt.other) {
				t.Errorf("Equal() = true for %v vs %v", base, tt.other)
			}
			if base.Key() == tt.other.Key() {
				t.Errorf("keys collide: %q", base.Key())
			}
		})
	}
}

func TestValuation_String(t *testing.T) {
	v := NewValuation(Pair{"threads", "32"}, Pair{"blocks", "16"})
	if got := v.String(); got != "threads=32, blocks=16" {
		t.Errorf("String() = %q", got)
	}
	if got := NewValuation().String(); got != "(empty)" {
		t.Errorf("empty String() = %q", got)
	}
}

func TestValuation_WithValueOverridesInPlace(t *testing.T) {
	base := NewValuation(Pair{"threads", "32"}, Pair{"blocks", "16"})
	got := base.WithValue("threads", "64")

	if val, _ := got.Get("threads"); val != "64" {
		t.Errorf("override value = %q", val)
	}
	if got.String() != "threads=64, blocks=16" {
		t.Errorf("override changed order: %q", got.String())
	}
	if val, _ := base.Get("threads"); val != "32" {
		t.Error("WithValue mutated the receiver")
	}
}

func TestValuation_WithValueAppendsNew(t *testing.T) {
	base := NewValuation(Pair{"a", "1"})
	got := base.WithValue("b", "2")

	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	if got.String() != "a=1, b=2" {
		t.Errorf("String() = %q", got.String())
	}
	if base.Len() != 1 {
		t.Error("WithValue mutated the receiver")
	}
}

func TestValuation_PairsReturnsCopy(t *testing.T) {
	v := NewValuation(Pair{"a", "1"})
	pairs := v.Pairs()
	pairs[0].Value = "mutated"

	if val, _ := v.Get("a"); val != "1" {
		t.Error("Pairs() exposed internal storage")
	}
}

func TestValuation_NamesOrder(t *testing.T) {
	v := NewValuation(Pair{"z", "1"}, Pair{"a", "2"}, Pair{"m", "3"})
	want := []string{"z", "a", "m"}
	if got := v.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
