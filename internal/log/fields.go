// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSegmentID = "segment_id"
	FieldJobID     = "job_id"
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Media / capture fields
	FieldDevice     = "device"
	FieldFPS        = "fps"
	FieldResolution = "resolution"
	FieldSeq        = "seq"
	FieldFrames     = "frames"
	FieldScore      = "score"
	FieldHits       = "hits"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldAttempt  = "attempt"

	// Path fields
	FieldPath           = "path"
	FieldCompressedPath = "compressed_path"
)
