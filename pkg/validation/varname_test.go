// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"testing"
)

func TestValidateVarName(t *testing.T) {
	tests := []struct {
		name    string
		varName string
		wantErr bool
	}{
		// Valid names
		{"simple", "threads", false},
		{"single char", "x", false},
		{"with digit", "tile_x2", false},
		{"leading underscore", "_internal", false},
		{"mixed case", "blockSize", false},

		// Invalid names - injection attempts
		{"empty", "", true},
		{"command injection", "threads; rm -rf /", true},
		{"subshell", "threads$(id)", true},
		{"newline", "threads\nrm", true},
		{"leading digit", "2threads", true},
		{"hyphen", "tile-x", true},
		{"percent marker", "%threads%", true},
		{"spaces", "tile x", true},
		{"dot", "tile.x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVarName(tt.varName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVarName(%q) error = %v, wantErr %v", tt.varName, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid ids
		{"uuid", "0f8fad5b-d9cb-469f-a165-70867728950e", false},
		{"short", "run-7", false},
		{"dotted", "nightly.2026-08-21", false},
		{"single char", "a", false},

		// Invalid ids - injection attempts
		{"empty", "", true},
		{"flux injection", `run") |> drop()`, true},
		{"quote", `run"1`, true},
		{"path traversal", "../other-run", true},
		{"slash", "runs/7", true},
		{"leading dot", ".hidden", true},
		{"leading hyphen", "-run", true},
		{"spaces", "run 7", true},
		{"too long", "a0123456789012345678901234567890123456789012345678901234567890123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "run-7", "run-7", false},
		{"whitespace trimmed", "  run-7\n", "run-7", false},
		{"uuid passthrough", "0f8fad5b-d9cb-469f-a165-70867728950e", "0f8fad5b-d9cb-469f-a165-70867728950e", false},
		{"invalid rejected", "runs/7", "", true},
		{"only whitespace", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeRunID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeRunID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
