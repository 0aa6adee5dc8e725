//go:build ignore

// Demo script to exercise the full tuning pipeline without a real
// benchmark. Run with: go run scripts/demo_tune.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/omariosc/autotuning-cuda/services/tuner/config"
	"github.com/omariosc/autotuning-cuda/services/tuner/evaluator"
	"github.com/omariosc/autotuning-cuda/services/tuner/resultlog"
	"github.com/omariosc/autotuning-cuda/services/tuner/strategy"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    TUNING PIPELINE DEMO                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")

	// 1. Write a synthetic tuning file
	step("Step 1: Writing a synthetic tuning file")
	dir, err := os.MkdirTemp("", "flamingo-demo-*")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	logPath := filepath.Join(dir, "results.csv")
	content := fmt.Sprintf(`
variables: "threads, blocks"
values:
  threads: ["1", "2", "4"]
  blocks: ["3", "5"]
commands:
  test: "echo $((%%threads%% * %%blocks%%))"
scoring:
  optimal: min
output:
  log: %s
`, logPath)
	cfgPath := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		log.Fatalf("write tuning file: %v", err)
	}
	fmt.Printf("  ✓ %s\n", cfgPath)

	// 2. Load settings and enumerate the space
	step("Step 2: Loading settings and enumerating the space")
	settings, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	sp, err := settings.Space()
	if err != nil {
		log.Fatalf("space: %v", err)
	}
	names, err := settings.VariableNames()
	if err != nil {
		log.Fatalf("names: %v", err)
	}
	fmt.Printf("  ✓ %d configurations over %v\n", sp.Count(), names)

	// 3. Wire the evaluator and the result log
	step("Step 3: Wiring the evaluator and result log")
	evalCfg, err := settings.EvaluatorConfig()
	if err != nil {
		log.Fatalf("evaluator config: %v", err)
	}
	sink, err := resultlog.Create(logPath, names, settings.Testing.Repeat)
	if err != nil {
		log.Fatalf("result log: %v", err)
	}
	defer sink.Close()

	ev, err := evaluator.New(evalCfg, evaluator.NewShellRunner(nil), evaluator.WithSink(sink))
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}
	fmt.Println("  ✓ Evaluator ready")

	// 4. Run the search
	step("Step 4: Running the search")
	optCfg, err := settings.OptimizerConfig()
	if err != nil {
		log.Fatalf("optimizer config: %v", err)
	}
	newSearch, err := strategy.Searches.Resolve(settings.Tuning.Strategy)
	if err != nil {
		log.Fatalf("strategy: %v", err)
	}
	search, err := newSearch(strategy.Deps{Space: sp, Evaluator: ev, Config: optCfg})
	if err != nil {
		log.Fatalf("search: %v", err)
	}

	sum, err := search.Run(ctx)
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Printf("  ✓ %s after %d evaluations, %d command launches\n",
		sum.State, sum.Evaluated, ev.Executions())

	if sum.HasBest {
		fmt.Printf("  ✓ Best score %g at", sum.Best.Aggregate)
		for _, name := range names {
			if v, ok := sum.Best.Valuation.Get(name); ok {
				fmt.Printf(" %s=%s", name, v)
			}
		}
		fmt.Println()
	}
	fmt.Printf("\nResult log: %s (removed with the temp dir)\n", logPath)
}

func step(title string) {
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Printf("│ %-63s │\n", title)
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
}
