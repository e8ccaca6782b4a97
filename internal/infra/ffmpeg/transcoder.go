// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/procgroup"
)

// Transcoder re-encodes segments to H.264/MP4.
type Transcoder struct {
	Bin    string
	CRF    int
	Preset string
	Grace  time.Duration
}

var _ compress.Transcoder = (*Transcoder)(nil)

// Transcode writes the compressed copy of in to out. The output is written
// to a temporary name first and only renamed into place after ffmpeg exited
// cleanly and produced a non-empty file, so out never holds a partial file.
func (t *Transcoder) Transcode(ctx context.Context, in, out string) error {
	tmp := out + ".part"
	grace := t.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	// #nosec G204 -- binary comes from operator configuration, paths from the segmenter
	cmd := exec.CommandContext(ctx, t.Bin, transcodeArgs(in, tmp, t.CRF, t.Preset)...)
	cmd.Cancel = func() error { return procgroup.Signal(cmd, syscall.SIGTERM) }
	cmd.WaitDelay = grace
	ring := NewLineRing(stderrLines)
	cmd.Stderr = ring
	procgroup.Set(cmd)

	logger := log.WithComponent("transcoder")
	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: cancelled: %w", compress.ErrTranscodeFailure, ctxErr)
		}
		if tail := ring.Tail(tailLines); tail != "" {
			return fmt.Errorf("%w: %v (stderr: %s)", compress.ErrTranscodeFailure, err, tail)
		}
		return fmt.Errorf("%w: %v", compress.ErrTranscodeFailure, err)
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("%w: output missing: %w", compress.ErrTranscodeFailure, err)
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: empty output", compress.ErrTranscodeFailure)
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename output: %w", compress.ErrTranscodeFailure, err)
	}

	logger.Debug().
		Str("event", "transcode.finished").
		Str(log.FieldPath, in).
		Str(log.FieldCompressedPath, out).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("transcode finished")
	return nil
}
