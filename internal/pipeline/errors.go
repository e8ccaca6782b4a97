// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "errors"

var (
	// ErrOutputDirUnwritable means out_dir cannot be created or written. Fatal to Start.
	ErrOutputDirUnwritable = errors.New("output directory not writable")

	// ErrCaptureFailed ends a run after too many consecutive capture errors.
	ErrCaptureFailed = errors.New("capture failed repeatedly")

	// ErrAlreadyStarted is returned by Start on a coordinator that ran before.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("pipeline not started")
)
