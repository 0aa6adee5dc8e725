// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package space enumerates the conditionally-valid configuration
// space derived from a variable tree.
//
// The space of a conditional tree is not the cross-product of all
// domains: a subtree contributes choices only on the parent branches
// that activate it. Count and enumeration agree exactly, and
// enumeration is deterministic and restartable, which is what makes
// sequential test IDs reproducible across runs.
package space

import (
	"github.com/omariosc/autotuning-cuda/services/tuner/vartree"
)

// Space is the set of distinct valuations a tree admits. Read-only
// and safe for concurrent use.
type Space struct {
	tree *vartree.Tree
}

// New wraps a validated tree.
func New(tree *vartree.Tree) *Space {
	return &Space{tree: tree}
}

// Tree returns the underlying variable tree.
func (s *Space) Tree() *vartree.Tree {
	return s.tree
}

// Count returns the number of valuations Each would yield.
//
// For one variable the count is the sum over its domain values of the
// product of the counts of the children that value activates (an
// empty product is 1). Sibling variables multiply. A single-valued
// domain therefore contributes a dimension of size 1, and a branch
// that activates no subtree contributes exactly one choice.
func (s *Space) Count() int {
	total := 1
	for _, root := range s.tree.Roots() {
		total *= countVariable(root)
	}
	return total
}

func countVariable(v *vartree.Variable) int {
	total := 0
	for _, value := range v.Domain {
		product := 1
		for _, child := range v.ActiveChildren(value) {
			product *= countVariable(child)
		}
		total += product
	}
	return total
}

// Each calls fn for every valuation in deterministic order: at each
// active variable the domain is iterated as declared, children of the
// chosen value are exhausted before the next sibling advances, and
// inactive subtrees are skipped entirely. fn returning false stops
// the walk early. Calling Each again restarts from the beginning and
// yields the identical sequence.
func (s *Space) Each(fn func(Valuation) bool) {
	pairs := make([]Pair, 0, s.tree.Len())
	walkSiblings(s.tree.Roots(), 0, &pairs, func() bool {
		return fn(NewValuation(pairs...))
	})
}

// All materializes the full enumeration in order.
func (s *Space) All() []Valuation {
	out := make([]Valuation, 0, s.Count())
	s.Each(func(v Valuation) bool {
		out = append(out, v)
		return true
	})
	return out
}

// walkSiblings enumerates assignments for vars[idx:]; emit is invoked
// once per complete assignment of the remaining siblings (and, through
// nesting, their active descendants). Returns false when aborted.
func walkSiblings(vars []*vartree.Variable, idx int, pairs *[]Pair, emit func() bool) bool {
	if idx == len(vars) {
		return emit()
	}

	v := vars[idx]
	for _, value := range v.Domain {
		mark := len(*pairs)
		*pairs = append(*pairs, Pair{Name: v.Name, Value: value})

		ok := walkSiblings(v.ActiveChildren(value), 0, pairs, func() bool {
			return walkSiblings(vars, idx+1, pairs, emit)
		})

		*pairs = (*pairs)[:mark]
		if !ok {
			return false
		}
	}
	return true
}
