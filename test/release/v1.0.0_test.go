package test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestResultLogFormatV1 pins the 1.0.0 result log layout. Resume
// reads logs written by earlier runs, so the header and row shape
// must stay stable across patch releases.
func TestResultLogFormatV1(t *testing.T) {
	// 1. Build the latest CLI binary
	tmpBin := "./flamingo_test_bin"
	buildCmd := exec.Command("go", "build", "-o", tmpBin, "../../cmd/flamingo")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\nOutput: %s", err, string(output))
	}
	defer os.Remove(tmpBin)

	// 2. Run a tiny session with three repetitions
	dir := t.TempDir()
	logPath := filepath.Join(dir, "results.csv")
	content := `
variables: "threads"
values:
  threads: ["1", "2"]
commands:
  test: "echo %threads%"
testing:
  repeat: 3
scoring:
  optimal: min
output:
  log: ` + logPath + `
`
	cfgPath := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tuning file: %v", err)
	}

	cmd := exec.Command(tmpBin, "tune", cfgPath)
	cmd.Env = append(os.Environ(), "FLAMINGO_HOME="+filepath.Join(dir, "home"))
	timer := time.AfterFunc(60*time.Second, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer timer.Stop()
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("tune failed: %v\nOutput: %s", err, output)
	}

	// 3. Assertions on the frozen format
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("result log missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("log has %d lines, want header plus 2 records:\n%s", len(lines), data)
	}
	if lines[0] != "threads,score_1,score_2,score_3,aggregate" {
		t.Errorf("header changed: %q", lines[0])
	}
	for _, line := range lines[1:] {
		if got := len(strings.Split(line, ",")); got != 5 {
			t.Errorf("row has %d fields, want 5: %q", got, line)
		}
	}
}

// TestVersionLineV1 pins the version output scripts parse.
func TestVersionLineV1(t *testing.T) {
	tmpBin := "./flamingo_version_bin"
	buildCmd := exec.Command("go", "build", "-o", tmpBin, "../../cmd/flamingo")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\nOutput: %s", err, string(output))
	}
	defer os.Remove(tmpBin)

	out, err := exec.Command(tmpBin, "version").CombinedOutput()
	if err != nil {
		t.Fatalf("version failed: %v\nOutput: %s", err, out)
	}
	if !strings.HasPrefix(string(out), "flamingo 1.0.0 (commit ") {
		t.Errorf("version line changed: %q", string(out))
	}
}
