// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package segment

import "errors"

var (
	// ErrWriter wraps every segment writer failure. The affected segment is
	// failed, its partial file is kept and it is never compressed.
	ErrWriter = errors.New("segment writer failed")
	// ErrOutOfOrder is returned when a frame does not advance the sequence.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrInvalidTransition is returned for an illegal state change.
	ErrInvalidTransition = errors.New("invalid segment state transition")
)
