package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTuning writes a self-contained tuning file whose test command
// needs nothing but /bin/sh. The score is threads*blocks, so the
// minimum is known in advance.
func writeTuning(t *testing.T, dir string) (cfgPath, logPath string) {
	t.Helper()
	logPath = filepath.Join(dir, "results.csv")
	content := fmt.Sprintf(`
variables: "threads, blocks"
values:
  threads: ["1", "2"]
  blocks: ["3", "5"]
commands:
  test: "echo $((%%threads%% * %%blocks%%))"
scoring:
  optimal: min
output:
  log: %s
  importance: %s
`, logPath, filepath.Join(dir, "sweep.csv"))

	cfgPath = filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tuning file: %v", err)
	}
	return cfgPath, logPath
}

// runFlamingo runs the built binary with an isolated home directory.
func runFlamingo(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(cliBinary, args...)
	cmd.Env = append(os.Environ(), "FLAMINGO_HOME="+home)

	// Timeout safety
	timer := time.AfterFunc(60*time.Second, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer timer.Stop()

	out, err := cmd.CombinedOutput()
	return string(out), err
}

// TestTune_HappyPath runs a full 2x2 tuning session end to end.
func TestTune_HappyPath(t *testing.T) {
	// 1. Setup
	dir := t.TempDir()
	cfgPath, logPath := writeTuning(t, dir)

	// 2. Execute
	output, err := runFlamingo(t, filepath.Join(dir, "home"), "tune", cfgPath)
	if err != nil {
		t.Fatalf("tune failed: %v\nOutput: %s", err, output)
	}

	// 3. Assertions
	for _, want := range []string{
		"Finished: succeeded",
		"Tested 4 of 4 configurations",
		"Best score: 3",
		"threads = 1",
		"blocks = 3",
		"no additional tests were required",
		"Run archived as",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("FAIL: output missing %q.\nOutput: %s", want, output)
		}
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("result log missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Errorf("result log has %d lines, want header plus 4 records:\n%s", len(lines), data)
	}
	if lines[0] != "threads,blocks,score_1,aggregate" {
		t.Errorf("unexpected log header %q", lines[0])
	}
}

// TestTune_ResumeLaunchesNothing reruns a finished session from its
// own log and verifies no command is launched again.
func TestTune_ResumeLaunchesNothing(t *testing.T) {
	// 1. First run
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	cfgPath, logPath := writeTuning(t, dir)

	output, err := runFlamingo(t, home, "tune", cfgPath)
	if err != nil {
		t.Fatalf("first tune failed: %v\nOutput: %s", err, output)
	}

	// 2. Resume from the log the first run wrote
	output, err = runFlamingo(t, home, "tune", cfgPath, "--resume", logPath)
	if err != nil {
		t.Fatalf("resumed tune failed: %v\nOutput: %s", err, output)
	}

	// 3. Assertions
	for _, want := range []string{
		"Adopted 4 results from " + logPath,
		"(0 command launches, 0 failed)",
		"Finished: succeeded",
		"Best score: 3",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("FAIL: output missing %q.\nOutput: %s", want, output)
		}
	}

	// The rewritten log is self-contained again.
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("result log missing after resume: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 5 {
		t.Errorf("resumed log has %d lines, want 5:\n%s", len(lines), data)
	}
}
