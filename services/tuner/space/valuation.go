// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package space

import (
	"sort"
	"strconv"
	"strings"
)

// Pair is one variable assignment inside a Valuation.
type Pair struct {
	Name  string
	Value string
}

// Valuation is one complete, conditionally-valid assignment of values
// to the variables active on a branch of the tree.
//
// A Valuation contains exactly the variables that are active given the
// ancestor choices it records: an inert variable is absent, never
// defaulted. Pair order is the pre-order position of each variable,
// which drives rendering and logging; equality ignores order.
//
// Valuations are immutable. Deriving methods return copies.
type Valuation struct {
	pairs []Pair
	index map[string]int
}

// NewValuation builds a Valuation from assignment pairs. A repeated
// name keeps the last value.
func NewValuation(pairs ...Pair) Valuation {
	v := Valuation{
		pairs: make([]Pair, 0, len(pairs)),
		index: make(map[string]int, len(pairs)),
	}
	for _, p := range pairs {
		if i, ok := v.index[p.Name]; ok {
			v.pairs[i].Value = p.Value
			continue
		}
		v.index[p.Name] = len(v.pairs)
		v.pairs = append(v.pairs, p)
	}
	return v
}

// Get returns the value assigned to name, or false when the variable
// is not active in this valuation.
func (v Valuation) Get(name string) (string, bool) {
	i, ok := v.index[name]
	if !ok {
		return "", false
	}
	return v.pairs[i].Value, true
}

// Has reports whether name is active in this valuation.
func (v Valuation) Has(name string) bool {
	_, ok := v.index[name]
	return ok
}

// Len returns the number of active variables.
func (v Valuation) Len() int {
	return len(v.pairs)
}

// Names returns the active variable names in assignment order.
func (v Valuation) Names() []string {
	names := make([]string, len(v.pairs))
	for i, p := range v.pairs {
		names[i] = p.Name
	}
	return names
}

// Pairs returns a copy of the assignments in order.
func (v Valuation) Pairs() []Pair {
	out := make([]Pair, len(v.pairs))
	copy(out, v.pairs)
	return out
}

// Key returns a canonical identity string: assignments sorted by
// variable name with both sides quoted, so equal valuations always
// produce equal keys regardless of assignment order or exotic value
// content. This is the deduplication key used across a run, its
// resume seed, and the importance sweep.
func (v Valuation) Key() string {
	parts := make([]string, len(v.pairs))
	for i, p := range v.pairs {
		parts[i] = strconv.Quote(p.Name) + "=" + strconv.Quote(p.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Equal reports value equality: same active variables, same values,
// order irrelevant.
func (v Valuation) Equal(o Valuation) bool {
	if len(v.pairs) != len(o.pairs) {
		return false
	}
	for _, p := range v.pairs {
		ov, ok := o.Get(p.Name)
		if !ok || ov != p.Value {
			return false
		}
	}
	return true
}

// String renders the valuation for humans: "a=1, b=2" in assignment
// order. An empty valuation renders as "(empty)".
func (v Valuation) String() string {
	if len(v.pairs) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, p := range v.pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString("=")
		b.WriteString(p.Value)
	}
	return b.String()
}

// WithValue returns a copy with name assigned value, overriding an
// existing assignment in place or appending a new one. Used by the
// importance sweep to perturb one variable of an optimum at a time.
func (v Valuation) WithValue(name, value string) Valuation {
	pairs := v.Pairs()
	if i, ok := v.index[name]; ok {
		pairs[i].Value = value
	} else {
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
	return NewValuation(pairs...)
}
