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
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/omariosc/autotuning-cuda/pkg/validation"
	"github.com/omariosc/autotuning-cuda/services/tuner/config"
	"github.com/omariosc/autotuning-cuda/services/tuner/export"
	"github.com/omariosc/autotuning-cuda/services/tuner/resultlog"
)

func runExportCmd(cmd *cobra.Command, args []string) {
	if err := runExport(args[0]); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

// runExport pushes the run's result log to InfluxDB, or with --query
// pulls a previously exported run back out as CSV. The tuning file is
// needed either way; it defines the variable columns.
func runExport(configPath string) error {
	toolCfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	logger := newToolLogger(toolCfg, "export")
	defer logger.Close()

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	names, err := settings.VariableNames()
	if err != nil {
		return err
	}

	client, err := export.New(export.Config{
		URL:    toolCfg.Influx.URL,
		Token:  toolCfg.Influx.Token,
		Org:    toolCfg.Influx.Org,
		Bucket: toolCfg.Influx.Bucket,
	}, export.WithLogger(logger.Slog()))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if exportQueryID != "" {
		queryID, err := validation.SanitizeRunID(exportQueryID)
		if err != nil {
			return err
		}
		var w io.Writer = os.Stdout
		if exportOutPath != "" {
			f, err := os.Create(exportOutPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", exportOutPath, err)
			}
			defer f.Close()
			w = f
		}
		rows, err := client.QueryRun(ctx, queryID, names, w)
		if err != nil {
			return err
		}
		if exportOutPath != "" {
			fmt.Printf("Wrote %d row(s) to %s\n", rows, exportOutPath)
		}
		return nil
	}

	recs, err := resultlog.Read(settings.Output.Log, names, settings.Testing.Repeat)
	if err != nil {
		return err
	}
	runID := exportRunID
	if runID == "" {
		runID = uuid.NewString()
	} else if runID, err = validation.SanitizeRunID(runID); err != nil {
		return err
	}
	points, err := client.WriteRun(ctx, runID, recs)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d point(s) from %s as run %s\n", points, settings.Output.Log, runID)
	return nil
}
