// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingHolder is returned when a supervisor is created without configuration.
	ErrMissingHolder = errors.New("config holder is required")

	// ErrMissingFactory is returned when a supervisor is created without a run factory.
	ErrMissingFactory = errors.New("pipeline factory is required")

	// ErrAlreadyRunning is returned by a second Supervisor.Run.
	ErrAlreadyRunning = errors.New("supervisor already running")
)
