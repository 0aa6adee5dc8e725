// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import "errors"

var (
	// ErrMissingURL indicates no InfluxDB endpoint was configured.
	ErrMissingURL = errors.New("influx url is required")

	// ErrMissingToken indicates no API token was configured.
	ErrMissingToken = errors.New("influx token is required")

	// ErrMissingOrg indicates no organization was configured.
	ErrMissingOrg = errors.New("influx org is required")

	// ErrMissingBucket indicates no bucket was configured.
	ErrMissingBucket = errors.New("influx bucket is required")

	// ErrMissingRunID indicates an export without a run id to tag or
	// query by.
	ErrMissingRunID = errors.New("run id is required")
)
