// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vartree models the conditional tunable-variable tree.
//
// A tuning run searches over named variables, each with an ordered
// domain of candidate values. Variables may be conditional: a subtree
// declared under a branch value exists in a configuration only when
// its parent variable takes exactly that value. This is what separates
// the search space from a flat grid: inactive branches are pruned
// from enumeration entirely, not filled with defaults.
//
// Trees are declared with a small grammar (see Parse) and bound to a
// map of per-variable value lists. All structural validation happens
// at construction; a successfully parsed Tree never fails during
// enumeration.
package vartree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/omariosc/autotuning-cuda/pkg/validation"
)

// ==============================================================================
// Types
// ==============================================================================

// Variable is one tunable parameter node in the tree.
//
// A root variable is unconditional. A child variable participates in a
// configuration only when its parent holds Activation.
type Variable struct {
	// Name uniquely identifies the variable across the whole tree.
	Name string

	// Domain is the ordered list of candidate values, as declared.
	// Enumeration iterates it in this order.
	Domain []string

	// Parent is nil for root variables.
	Parent *Variable

	// Activation is the parent value that brings this variable into
	// play. Empty for root variables.
	Activation string

	// Children holds conditional subtrees in declaration order. Each
	// child's Activation says which of this variable's values it
	// belongs to.
	Children []*Variable
}

// ActiveChildren returns the children activated when this variable
// takes value, in declaration order.
func (v *Variable) ActiveChildren(value string) []*Variable {
	var active []*Variable
	for _, c := range v.Children {
		if c.Activation == value {
			active = append(active, c)
		}
	}
	return active
}

// Tree is an immutable forest of Variables with bound domains.
//
// Construct with Parse. All lookups and traversals are read-only and
// safe for concurrent use.
type Tree struct {
	roots  []*Variable
	byName map[string]*Variable
	flat   []string
}

// ==============================================================================
// Accessors
// ==============================================================================

// Roots returns the unconditional top-level variables in declaration
// order.
func (t *Tree) Roots() []*Variable {
	return t.roots
}

// Flatten returns every variable name in pre-order: parents before
// children, siblings and branches in declaration order. This is the
// column order of result logs and the validation order for domains.
func (t *Tree) Flatten() []string {
	out := make([]string, len(t.flat))
	copy(out, t.flat)
	return out
}

// Lookup returns the named variable, or false when not declared.
func (t *Tree) Lookup(name string) (*Variable, bool) {
	v, ok := t.byName[name]
	return v, ok
}

// Len returns the number of declared variables.
func (t *Tree) Len() int {
	return len(t.flat)
}

// String renders the tree back into declaration-grammar form. The
// result reparses to an equivalent tree.
func (t *Tree) String() string {
	var b strings.Builder
	writeSiblings(&b, t.roots)
	return b.String()
}

func writeSiblings(b *strings.Builder, vars []*Variable) {
	for i, v := range vars {
		if i > 0 {
			b.WriteString(", ")
		}
		writeNode(b, v)
	}
}

func writeNode(b *strings.Builder, v *Variable) {
	b.WriteString(v.Name)
	if len(v.Children) == 0 {
		return
	}

	// Group children by activation value, preserving domain order.
	b.WriteString("{")
	first := true
	for _, value := range v.Domain {
		group := v.ActiveChildren(value)
		if len(group) == 0 {
			continue
		}
		if !first {
			b.WriteString("; ")
		}
		first = false
		b.WriteString(value)
		b.WriteString(": ")
		writeSiblings(b, group)
	}
	b.WriteString("}")
}

// ==============================================================================
// Construction
// ==============================================================================

// Parse builds a Tree from a declaration string and a map of value
// lists.
//
// Description:
//
//	The declaration grammar is:
//
//	    tree   := node ("," node)*
//	    node   := NAME ( "{" branch (";" branch)* "}" )?
//	    branch := VALUE ":" tree
//
//	NAME must match [A-Za-z_][A-Za-z0-9_]*. VALUE is any run of
//	characters excluding "{}:;,", trimmed of surrounding whitespace.
//	Whitespace, including newlines, is otherwise insignificant.
//
//	Example:
//
//	    method{tiled: tile_x, tile_y; strip: strip_len}, threads
//
//	declares five variables; tile_x and tile_y exist only when
//	method=tiled, strip_len only when method=strip.
//
// Inputs:
//
//	decl - The declaration string.
//	domains - Value list per declared variable name. Every declared
//	          variable needs a non-empty entry; entries for undeclared
//	          names are rejected.
//
// Outputs:
//
//	*Tree - The validated tree.
//	error - ParseError for grammar violations; wrapped sentinel errors
//	        for structural problems (duplicate names, missing or empty
//	        domains, activation values outside the parent's domain).
//	        Always before any enumeration can happen.
func Parse(decl string, domains map[string][]string) (*Tree, error) {
	p := &parser{input: decl}
	roots, err := p.parseSiblings()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, ErrEmptyTree
	}

	t := &Tree{
		roots:  roots,
		byName: make(map[string]*Variable),
	}
	if err := t.bind(domains); err != nil {
		return nil, err
	}
	return t, nil
}

// bind walks the parsed structure once, indexing names, binding
// domains, and checking every structural invariant.
func (t *Tree) bind(domains map[string][]string) error {
	var walk func(v *Variable) error
	walk = func(v *Variable) error {
		if err := validation.ValidateVarName(v.Name); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidName, v.Name)
		}
		if _, exists := t.byName[v.Name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name)
		}
		t.byName[v.Name] = v
		t.flat = append(t.flat, v.Name)

		domain, ok := domains[v.Name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingDomain, v.Name)
		}
		if len(domain) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyDomain, v.Name)
		}
		v.Domain = append([]string(nil), domain...)

		for _, c := range v.Children {
			if !contains(v.Domain, c.Activation) {
				return fmt.Errorf("%w: %q activates %q on %q",
					ErrUnknownActivation, c.Name, v.Name, c.Activation)
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range t.roots {
		if err := walk(root); err != nil {
			return err
		}
	}

	// Reject stray value lists; they are almost always a typo for a
	// declared variable.
	var stray []string
	for name := range domains {
		if _, ok := t.byName[name]; !ok {
			stray = append(stray, name)
		}
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		return fmt.Errorf("%w: %s", ErrUndeclaredDomain, strings.Join(stray, ", "))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
