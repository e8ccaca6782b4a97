// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package segment

import (
	"fmt"
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
)

// Writer encodes frames into one segment file.
type Writer interface {
	Append(f frame.Frame) error
	// Close flushes and finalizes the file.
	Close() (Metadata, error)
}

// WriterFactory creates a Writer for a new segment file.
type WriterFactory func(path string, format frame.Format, fps int) (Writer, error)

// Metadata describes a finished segment file.
type Metadata struct {
	Path     string
	Frames   int
	FirstSeq uint64
	LastSeq  uint64
	Start    time.Time
	End      time.Time
	Bytes    int64
}

// sequencedWriter enforces strictly increasing frame sequence numbers and
// fills the frame bookkeeping of Metadata.
type sequencedWriter struct {
	inner Writer
	path  string
	meta  Metadata
}

// Sequenced wraps w so that frames must arrive in strictly increasing
// sequence order. Out-of-order frames are rejected with ErrOutOfOrder
// without reaching w.
func Sequenced(w Writer, path string) Writer {
	return &sequencedWriter{inner: w, path: path}
}

func (w *sequencedWriter) Append(f frame.Frame) error {
	if w.meta.Frames > 0 && f.Seq <= w.meta.LastSeq {
		return fmt.Errorf("%w: seq %d after %d", ErrOutOfOrder, f.Seq, w.meta.LastSeq)
	}
	if err := w.inner.Append(f); err != nil {
		return err
	}
	if w.meta.Frames == 0 {
		w.meta.FirstSeq = f.Seq
		w.meta.Start = f.Timestamp
	}
	w.meta.LastSeq = f.Seq
	w.meta.End = f.Timestamp
	w.meta.Frames++
	return nil
}

func (w *sequencedWriter) Close() (Metadata, error) {
	inner, err := w.inner.Close()
	meta := w.meta
	meta.Path = w.path
	meta.Bytes = inner.Bytes
	if inner.Path != "" {
		meta.Path = inner.Path
	}
	return meta, err
}
