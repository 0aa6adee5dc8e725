// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omariosc/autotuning-cuda/cmd/flamingo/gcs"
	"github.com/omariosc/autotuning-cuda/pkg/validation"
)

func runArchiveCmd(cmd *cobra.Command, args []string) {
	if err := runArchive(args[0]); err != nil {
		log.Fatalf("Archive failed: %v", err)
	}
}

// runArchive uploads an archived run's summary, result log, and tuning
// file to a GCS bucket under <prefix>/<run-id>/.
func runArchive(runID string) error {
	// The id becomes object path segments.
	runID, err := validation.SanitizeRunID(runID)
	if err != nil {
		return err
	}
	toolCfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	logger := newToolLogger(toolCfg, "archive")
	defer logger.Close()

	bucket := archiveBucket
	if bucket == "" {
		bucket = toolCfg.GCS.Bucket
	}
	if bucket == "" {
		return errors.New("no GCS bucket configured; pass --bucket or set gcs.bucket in the tool config")
	}
	keyPath := archiveKeyPath
	if keyPath == "" {
		keyPath = toolCfg.GCS.KeyPath
	}

	store, err := openHistory(toolCfg, logger.Slog())
	if err != nil {
		return err
	}
	getCtx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	sum, err := store.Get(getCtx, runID)
	cancel()
	// Badger holds a directory lock, so release it before the upload
	// rather than across it.
	store.Close()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := gcs.NewClient(ctx, bucket, keyPath)
	if err != nil {
		return err
	}
	defer client.Close()

	prefix := path.Join(archivePrefix, sum.ID)

	object := path.Join(prefix, "summary.json")
	if err := client.UploadJSON(ctx, object, sum); err != nil {
		return err
	}
	fmt.Printf("Uploaded gs://%s/%s\n", bucket, object)

	for _, local := range []string{sum.LogPath, sum.ConfigPath} {
		if local == "" {
			continue
		}
		if _, err := os.Stat(local); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", local, err)
			continue
		}
		object := path.Join(prefix, filepath.Base(local))
		if err := client.UploadFile(ctx, local, object); err != nil {
			return err
		}
		fmt.Printf("Uploaded gs://%s/%s\n", bucket, object)
	}
	return nil
}
