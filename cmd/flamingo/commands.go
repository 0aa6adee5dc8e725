// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"time"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	// tune flags
	resumePath      string
	workersOverride int
	statusAddr      string
	quietMode       bool
	verboseMode     bool
	noColor         bool

	// space flags
	watchSpace bool

	// history flags
	historyLimit   int
	pruneOlderThan time.Duration

	// export flags
	exportRunID   string
	exportQueryID string
	exportOutPath string

	// archive flags
	archiveBucket  string
	archiveKeyPath string
	archivePrefix  string

	rootCmd = &cobra.Command{
		Use:   "flamingo",
		Short: "An auto-tuner for compiled programs",
		Long: `Flamingo searches the configuration space described by a tuning
				file, measuring each configuration by running your compile and
				benchmark commands, and reports the best one it found.`,
		SilenceUsage: true,
	}

	tuneCmd = &cobra.Command{
		Use:   "tune [tuning.yaml]",
		Short: "Run a tuning session described by a tuning file",
		Args:  cobra.ExactArgs(1),
		Run:   runTune, // Defined in cmd_tune.go
	}

	spaceCmd = &cobra.Command{
		Use:   "space [tuning.yaml]",
		Short: "Show the variables, domains and size of the configuration space",
		Args:  cobra.ExactArgs(1),
		Run:   runSpace, // Defined in cmd_space.go
	}

	// --- History ---
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Inspect archived tuning runs",
	}
	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Run:   runHistoryList, // Defined in cmd_history.go
	}
	historyShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one archived run in full",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryShow, // Defined in cmd_history.go
	}
	historyPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete archived runs older than a cutoff",
		Run:   runHistoryPrune, // Defined in cmd_history.go
	}

	exportCmd = &cobra.Command{
		Use:   "export [tuning.yaml]",
		Short: "Push a run's results to InfluxDB, or query them back",
		Args:  cobra.ExactArgs(1),
		Run:   runExportCmd, // Defined in cmd_export.go
	}

	archiveCmd = &cobra.Command{
		Use:   "archive [run-id]",
		Short: "Upload an archived run's log and tuning file to GCS",
		Args:  cobra.ExactArgs(1),
		Run:   runArchiveCmd, // Defined in cmd_archive.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(tuneCmd)
	tuneCmd.Flags().StringVar(&resumePath, "resume", "",
		"Adopt results from a previous log; matching configurations are not re-run")
	tuneCmd.Flags().IntVar(&workersOverride, "workers", 0,
		"Override tuning.workers from the file (0 keeps the file's value)")
	tuneCmd.Flags().StringVar(&statusAddr, "status", "",
		"Serve live progress on this address, e.g. 127.0.0.1:8321")
	tuneCmd.Flags().BoolVar(&quietMode, "quiet", false,
		"Suppress progress output; results still go to the log files")
	tuneCmd.Flags().BoolVar(&verboseMode, "verbose", false,
		"Log debug detail to stderr")
	tuneCmd.Flags().BoolVar(&noColor, "no-color", false,
		"Plain line-by-line progress even on a terminal")

	rootCmd.AddCommand(spaceCmd)
	spaceCmd.Flags().BoolVar(&watchSpace, "watch", false,
		"Keep watching the tuning file and re-print on change")

	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Most recent runs to list (0 lists all)")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 90*24*time.Hour,
		"Delete runs that started earlier than this long ago")

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportRunID, "run", "",
		"Run id to tag exported points with (default: a fresh id)")
	exportCmd.Flags().StringVar(&exportQueryID, "query", "",
		"Query this run id back from InfluxDB instead of pushing")
	exportCmd.Flags().StringVarP(&exportOutPath, "out", "o", "",
		"Write queried results to this file instead of stdout")

	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&archiveBucket, "bucket", "",
		"GCS bucket (default: gcs.bucket from tool config)")
	archiveCmd.Flags().StringVar(&archiveKeyPath, "key", "",
		"Service account key file (default: application default credentials)")
	archiveCmd.Flags().StringVar(&archivePrefix, "prefix", "flamingo",
		"Object name prefix inside the bucket")

	rootCmd.AddCommand(versionCmd)
}
