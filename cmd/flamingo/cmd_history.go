// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/omariosc/autotuning-cuda/services/tuner/history"
)

// historyTimeout bounds archive reads; a Badger open plus a scan is
// normally milliseconds.
const historyTimeout = 30 * time.Second

// withHistory opens the archive, runs fn, and closes it.
func withHistory(fn func(ctx context.Context, store *history.Store) error) error {
	toolCfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	logger := newToolLogger(toolCfg, "history")
	defer logger.Close()

	store, err := openHistory(toolCfg, logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	return fn(ctx, store)
}

func runHistoryList(cmd *cobra.Command, args []string) {
	err := withHistory(func(ctx context.Context, store *history.Store) error {
		sums, err := store.List(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(sums) == 0 {
			fmt.Println("No archived runs")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATE\tTESTED\tFAILED\tBEST\tOBJECTIVE")
		for _, s := range sums {
			best := "-"
			if s.HasBest {
				best = formatScore(s.BestScore)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.State, s.Tested, s.SpaceSize, s.Failed, best, s.Direction)
		}
		return w.Flush()
	})
	if err != nil {
		log.Fatalf("History list failed: %v", err)
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) {
	err := withHistory(func(ctx context.Context, store *history.Store) error {
		s, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run %s\n", s.ID)
		fmt.Printf("  State:     %s (%s)\n", s.State, s.Direction)
		fmt.Printf("  Started:   %s\n", s.StartedAt.Local().Format(time.RFC1123))
		fmt.Printf("  Finished:  %s (%s elapsed)\n",
			s.FinishedAt.Local().Format(time.RFC1123), s.Elapsed().Round(time.Second))
		fmt.Printf("  Tested:    %d of %d configurations, %d failed\n",
			s.Tested, s.SpaceSize, s.Failed)
		if s.HasBest {
			fmt.Printf("  Best:      %s\n", formatScore(s.BestScore))
			names := make([]string, 0, len(s.Best))
			for name := range s.Best {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("    %s = %s\n", name, s.Best[name])
			}
		}
		if s.ConfigPath != "" {
			fmt.Printf("  Config:    %s\n", s.ConfigPath)
		}
		if s.LogPath != "" {
			fmt.Printf("  Log:       %s\n", s.LogPath)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("History show failed: %v", err)
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) {
	err := withHistory(func(ctx context.Context, store *history.Store) error {
		deleted, err := store.Prune(ctx, pruneOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d archived run(s) older than %s\n", deleted, pruneOlderThan)
		return nil
	})
	if err != nil {
		log.Fatalf("History prune failed: %v", err)
	}
}
