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
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/omariosc/autotuning-cuda/services/tuner/config"
	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// watchDebounce batches the event bursts editors produce per save.
const watchDebounce = 200 * time.Millisecond

func runSpace(cmd *cobra.Command, args []string) {
	path := args[0]

	report, err := spaceReport(path)
	if err != nil {
		if !watchSpace {
			log.Fatalf("Space check failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		fmt.Print(report)
	}

	if !watchSpace {
		return
	}
	if err := watchSpaceFile(path); err != nil {
		log.Fatalf("Watch failed: %v", err)
	}
}

// spaceReport loads the tuning file and describes its configuration
// space: every variable with its activation condition and domain,
// then the total count.
func spaceReport(path string) (string, error) {
	settings, err := config.Load(path)
	if err != nil {
		return "", err
	}
	tree, err := settings.Tree()
	if err != nil {
		return "", err
	}
	sp := space.New(tree)

	var b strings.Builder
	fmt.Fprintf(&b, "Variables (%d):\n", tree.Len())
	for _, name := range tree.Flatten() {
		v, _ := tree.Lookup(name)
		if v.Parent != nil {
			fmt.Fprintf(&b, "  %s (when %s = %s): %s\n",
				v.Name, v.Parent.Name, v.Activation, strings.Join(v.Domain, " "))
		} else {
			fmt.Fprintf(&b, "  %s: %s\n", v.Name, strings.Join(v.Domain, " "))
		}
	}
	fmt.Fprintf(&b, "Configurations: %d\n", sp.Count())
	return b.String(), nil
}

// watchSpaceFile re-validates and re-prints on every save until
// interrupted. The parent directory is watched, not the file itself;
// most editors replace the file on save, which would kill a watch on
// the old inode.
func watchSpaceFile(path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", path)

	base := filepath.Base(path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		case <-pending:
			pending = nil
			stamp := time.Now().Format("15:04:05")
			report, err := spaceReport(path)
			if err != nil {
				fmt.Printf("[%s] %v\n", stamp, err)
				continue
			}
			fmt.Printf("[%s] %s changed\n%s", stamp, path, report)
		}
	}
}
