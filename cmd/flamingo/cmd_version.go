// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at link time:
//
//	go build -ldflags "-X main.buildVersion=1.2.0 -X main.buildCommit=$(git rev-parse --short HEAD)"
var (
	buildVersion = "1.0.0"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("flamingo %s (commit %s, built %s, %s)\n",
		buildVersion, buildCommit, buildDate, runtime.Version())
}
