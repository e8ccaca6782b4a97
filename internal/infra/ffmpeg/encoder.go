// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/segment"
)

// ErrEncoderClosed is returned when appending to a closed encoder.
var ErrEncoderClosed = errors.New("encoder closed")

// Encoder creates segment writers backed by an ffmpeg encoder process.
type Encoder struct {
	Bin string
	// FinishTimeout bounds how long Close waits for ffmpeg to finalize the file.
	FinishTimeout time.Duration
	Grace         time.Duration
}

// NewWriter implements segment.WriterFactory.
func (e *Encoder) NewWriter(path string, format frame.Format, fps int) (segment.Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	logger := log.WithComponent("encoder").With().Str(log.FieldPath, path).Logger()

	// #nosec G204 -- binary comes from operator configuration, path from the namer
	cmd := exec.Command(e.Bin, encoderArgs(path, format, fps)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	proc, err := startProcess(cmd, e.Grace, logger)
	if err != nil {
		return nil, err
	}

	timeout := e.FinishTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &encoderWriter{path: path, format: format, stdin: stdin, proc: proc, timeout: timeout}, nil
}

var _ segment.WriterFactory = (&Encoder{}).NewWriter

type encoderWriter struct {
	path    string
	format  frame.Format
	stdin   io.WriteCloser
	proc    *process
	timeout time.Duration
	closed  bool
}

func (w *encoderWriter) Append(f frame.Frame) error {
	if w.closed {
		return ErrEncoderClosed
	}
	if f.Format != w.format {
		return fmt.Errorf("frame format %s/%s does not match encoder %s/%s",
			f.Format.Resolution(), f.Format.Pixel, w.format.Resolution(), w.format.Pixel)
	}
	if len(f.Data) != w.format.Size() {
		return fmt.Errorf("frame data has %d bytes, want %d", len(f.Data), w.format.Size())
	}
	if _, err := w.stdin.Write(f.Data); err != nil {
		if w.proc.Exited() && w.proc.exitErr != nil {
			return fmt.Errorf("encoder write: %s", w.proc.describe(w.proc.exitErr))
		}
		return fmt.Errorf("encoder write: %s", w.proc.describe(err))
	}
	return nil
}

// Close ends the input and waits for ffmpeg to finalize the file. The file
// is left in place even on error.
func (w *encoderWriter) Close() (segment.Metadata, error) {
	meta := segment.Metadata{Path: w.path}
	if w.closed {
		return meta, ErrEncoderClosed
	}
	w.closed = true

	_ = w.stdin.Close()
	exited, err := w.proc.waitTimeout(w.timeout)
	if !exited {
		_ = w.proc.stop()
		return meta, fmt.Errorf("encoder did not finish within %s", w.timeout)
	}
	if err != nil {
		return meta, fmt.Errorf("encoder exit: %s", w.proc.describe(err))
	}

	info, err := os.Stat(w.path)
	if err != nil {
		return meta, fmt.Errorf("stat segment: %w", err)
	}
	meta.Bytes = info.Size()
	return meta, nil
}
