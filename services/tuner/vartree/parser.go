// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vartree

import (
	"fmt"
	"strings"
	"unicode"
)

// parser is a recursive-descent reader over the declaration grammar.
// It only builds structure; name/domain validation happens in bind.
type parser struct {
	input string
	pos   int
}

// special characters that terminate a NAME or VALUE token.
const specials = "{}:;,"

// parseSiblings reads `node ("," node)*`.
func (p *parser) parseSiblings() ([]*Variable, error) {
	var vars []*Variable
	for {
		v, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)

		p.skipSpace()
		if p.peek() != ',' {
			return vars, nil
		}
		p.pos++
	}
}

// parseNode reads `NAME ( "{" branch (";" branch)* "}" )?`.
func (p *parser) parseNode() (*Variable, error) {
	name, err := p.token("variable name")
	if err != nil {
		return nil, err
	}
	v := &Variable{Name: name}

	p.skipSpace()
	if p.peek() != '{' {
		return v, nil
	}
	p.pos++

	for {
		value, err := p.token("branch value")
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.peek() != ':' {
			return nil, &ParseError{Offset: p.pos, Detail: fmt.Sprintf("expected ':' after branch value %q", value)}
		}
		p.pos++

		children, err := p.parseSiblings()
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			c.Parent = v
			c.Activation = value
		}
		v.Children = append(v.Children, children...)

		p.skipSpace()
		switch p.peek() {
		case ';':
			p.pos++
		case '}':
			p.pos++
			return v, nil
		default:
			return nil, &ParseError{Offset: p.pos, Detail: "expected ';' or '}' after branch"}
		}
	}
}

// token reads a run of characters up to a special or end of input and
// trims surrounding whitespace. An empty run is a syntax error naming
// what was expected.
func (p *parser) token(what string) (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune(specials, rune(p.input[p.pos])) {
		p.pos++
	}
	tok := strings.TrimSpace(p.input[start:p.pos])
	if tok == "" {
		return "", &ParseError{Offset: start, Detail: "expected " + what}
	}
	return tok, nil
}

// expectEOF fails when unconsumed input remains after the tree.
func (p *parser) expectEOF() error {
	p.skipSpace()
	if p.pos < len(p.input) {
		return &ParseError{Offset: p.pos, Detail: fmt.Sprintf("unexpected %q", p.input[p.pos])}
	}
	return nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

// peek returns the next byte without consuming it, or 0 at end of
// input.
func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}
