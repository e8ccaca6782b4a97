// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capture defines the frame source contract and the cadence and
// hand-off logic shared by source implementations.
package capture

import (
	"context"
	"errors"

	"github.com/ManuGH/smartcam/internal/frame"
)

var (
	// ErrDeviceUnavailable means the device could not be opened. Fatal to a run.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrCapture is a transient failure to produce a frame. The source keeps
	// producing afterwards.
	ErrCapture = errors.New("capture failed")
	// ErrDeviceLost means the source broke mid-stream and cannot recover
	// within this run.
	ErrDeviceLost = errors.New("capture device lost")
	// ErrEndOfStream means the source will not produce further frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Source yields frames at the configured cadence.
type Source interface {
	// Next blocks until the next frame, ctx is done, or the source fails.
	Next(ctx context.Context) (frame.Frame, error)
	// Format is the geometry of every frame of this source.
	Format() frame.Format
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Opener opens a frame source for a device.
type Opener interface {
	Open(ctx context.Context, device string, fps int) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, device string, fps int) (Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, device string, fps int) (Source, error) {
	return f(ctx, device, fps)
}
