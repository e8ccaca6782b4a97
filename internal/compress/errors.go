// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package compress

import "errors"

var (
	// ErrTranscodeFailure is returned when a transcode did not produce a
	// verified output file.
	ErrTranscodeFailure = errors.New("transcode failed")

	// ErrNotClosed is returned by Enqueue for segments that are not closed.
	ErrNotClosed = errors.New("segment is not closed")

	// ErrUnknownJob is returned by Acknowledge for IDs that are not queued.
	ErrUnknownJob = errors.New("unknown compression job")

	// ErrJobActive is returned by Acknowledge for jobs that are not terminal yet.
	ErrJobActive = errors.New("compression job not finished")
)
