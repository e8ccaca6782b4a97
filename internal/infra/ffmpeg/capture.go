// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/ManuGH/smartcam/internal/capture"
	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
)

// Capture opens camera devices (or any ffmpeg input) as frame sources.
// Frames are scaled to Width x Height and delivered as BGR24.
type Capture struct {
	Bin         string
	Width       int
	Height      int
	OpenTimeout time.Duration
	Grace       time.Duration
}

var _ capture.Opener = (*Capture)(nil)

// Open starts ffmpeg for device and waits for the first frame. Any failure
// up to that point is reported as capture.ErrDeviceUnavailable with the
// tail of ffmpeg's stderr.
func (c *Capture) Open(ctx context.Context, device string, fps int) (capture.Source, error) {
	logger := log.WithComponent("capture").With().
		Str(log.FieldDevice, device).
		Int(log.FieldFPS, fps).
		Logger()

	format := frame.Format{Width: c.Width, Height: c.Height, Pixel: frame.BGR24}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", capture.ErrDeviceUnavailable, device, err)
	}

	// #nosec G204 -- binary and device come from operator configuration
	cmd := exec.Command(c.Bin, captureArgs(device, fps, format)...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw

	proc, err := startProcess(cmd, c.Grace, logger)
	if err != nil {
		metrics.IncDeviceOpen("error")
		return nil, fmt.Errorf("%w: %s: %w", capture.ErrDeviceUnavailable, device, err)
	}
	go func() {
		<-proc.exited
		_ = pw.Close()
	}()

	stream, err := capture.NewStream(pr, capture.StreamConfig{
		Format: format,
		FPS:    fps,
		OnClose: func() error {
			_ = pr.Close()
			if err := proc.stop(); err != nil {
				logger.Debug().Err(err).Str("event", "capture.ffmpeg_exit").Msg("capture process exited")
			}
			return nil
		},
	})
	if err != nil {
		_ = pr.Close()
		_ = proc.stop()
		return nil, fmt.Errorf("%w: %s: %w", capture.ErrDeviceUnavailable, device, err)
	}

	timeout := c.OpenTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := stream.WaitReady(waitCtx); err != nil {
		_ = stream.Close()
		metrics.IncDeviceOpen("error")
		reason := err.Error()
		switch {
		case proc.Exited() && proc.exitErr != nil:
			reason = proc.describe(proc.exitErr)
		case errors.Is(err, context.DeadlineExceeded):
			reason = fmt.Sprintf("no frame within %s", timeout)
		case proc.Exited():
			reason = proc.describe(errors.New("ffmpeg exited before the first frame"))
		}
		logger.Error().
			Str("event", "capture.open_failed").
			Str("reason", reason).
			Msg("failed to open capture device")
		return nil, fmt.Errorf("%w: %s: %s", capture.ErrDeviceUnavailable, device, reason)
	}

	metrics.IncDeviceOpen("ok")
	logger.Info().
		Str("event", "capture.opened").
		Str(log.FieldResolution, format.Resolution()).
		Int(log.FieldPID, cmd.Process.Pid).
		Msg("capture device opened")
	return stream, nil
}
