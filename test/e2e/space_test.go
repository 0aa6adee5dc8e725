package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestSpace_Report checks the space command against a conditional tree.
func TestSpace_Report(t *testing.T) {
	// 1. Setup
	dir := t.TempDir()
	content := `
variables: "method{tiled: tile}, threads"
values:
  method: [simple, tiled]
  tile: ["8", "16"]
  threads: ["16", "32"]
commands:
  test: "./bench"
`
	cfgPath := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tuning file: %v", err)
	}

	// 2. Execute
	output, err := runFlamingo(t, filepath.Join(dir, "home"), "space", cfgPath)
	if err != nil {
		t.Fatalf("space failed: %v\nOutput: %s", err, output)
	}

	// 3. Assertions
	for _, want := range []string{
		"Variables (3):",
		"tile (when method = tiled): 8 16",
		"Configurations: 6",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("FAIL: output missing %q.\nOutput: %s", want, output)
		}
	}
}

// TestSpace_BadFile checks the exit code and message for a broken file.
func TestSpace_BadFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(cfgPath, []byte("variables: [not a string"), 0644); err != nil {
		t.Fatalf("Failed to write tuning file: %v", err)
	}

	output, err := runFlamingo(t, filepath.Join(dir, "home"), "space", cfgPath)
	if err == nil {
		t.Fatalf("space should exit non-zero for a broken file.\nOutput: %s", output)
	}
	if !strings.Contains(output, "Space check failed") {
		t.Errorf("FAIL: output missing the failure message.\nOutput: %s", output)
	}
}

// TestVersion checks the version line.
func TestVersion(t *testing.T) {
	output, err := runFlamingo(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "flamingo 1.0.0") {
		t.Errorf("FAIL: output missing the version.\nOutput: %s", output)
	}
}
