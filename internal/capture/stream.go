// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
	"github.com/rs/zerolog"
)

// StreamConfig describes a raw frame stream.
type StreamConfig struct {
	Format frame.Format
	FPS    int
	// Now stamps frames on arrival. Defaults to time.Now.
	Now func() time.Time
	// OnClose releases whatever produces the stream (e.g. terminates the
	// process writing to it). It must make pending reads return.
	OnClose func() error
}

// Stats counts frames seen by a Stream.
type Stats struct {
	Read                uint64
	Delivered           uint64
	ReadErrors          uint64
	DroppedCadence      uint64
	DroppedBackpressure uint64
}

// Stream turns a reader of packed raw frames into a Source.
//
// A single goroutine reads whole frames, applies the cadence pacer and hands
// frames over through a one-slot channel. When the consumer has not taken the
// previous frame the new one is dropped, so a slow consumer never builds a
// backlog and the reader never blocks on frame delivery.
//
// A read error that consumed no bytes is handed over as ErrCapture and
// reading resumes after one frame interval. A failure in the middle of a
// frame loses frame alignment and ends the stream with ErrDeviceLost.
type Stream struct {
	cfg    StreamConfig
	r      io.Reader
	pacer  *Pacer
	out    chan delivery
	stop   chan struct{}
	first  chan struct{}
	done   chan struct{}
	logger zerolog.Logger

	firstOnce sync.Once
	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	termErr error

	seq                 uint64
	read                atomic.Uint64
	delivered           atomic.Uint64
	readErrors          atomic.Uint64
	droppedCadence      atomic.Uint64
	droppedBackpressure atomic.Uint64
}

// delivery is one hand-off: a frame or a transient error.
type delivery struct {
	f   frame.Frame
	err error
}

// NewStream starts reading frames from r.
func NewStream(r io.Reader, cfg StreamConfig) (*Stream, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Stream{
		cfg:    cfg,
		r:      r,
		pacer:  NewPacer(cfg.FPS),
		out:    make(chan delivery, 1),
		stop:   make(chan struct{}),
		first:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.WithComponent("capture"),
	}
	go s.readLoop()
	return s, nil
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer close(s.out)

	size := s.cfg.Format.Size()
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(s.r, buf)
		if err != nil {
			if n > 0 || endOfStream(err) {
				s.finish(err, n)
				return
			}
			if !s.deliverError(err) {
				return
			}
			continue
		}
		now := s.cfg.Now()
		s.read.Add(1)
		s.markFirst()

		if !s.pacer.Admit(now) {
			s.droppedCadence.Add(1)
			metrics.IncFramesDropped("cadence")
			continue
		}

		s.seq++
		f := frame.Frame{Seq: s.seq, Timestamp: now, Format: s.cfg.Format, Data: buf}
		select {
		case s.out <- delivery{f: f}:
			s.delivered.Add(1)
			metrics.IncFramesCaptured()
		default:
			// Seq stays consumed so the gap is visible downstream.
			s.droppedBackpressure.Add(1)
			metrics.IncFramesDropped("backpressure")
		}
	}
}

// deliverError hands a transient read error to the consumer and waits one
// frame interval before the next read. Unlike frames, errors are never
// dropped. It reports false when the stream is being closed.
func (s *Stream) deliverError(err error) bool {
	s.readErrors.Add(1)
	metrics.IncCaptureError("transient")
	s.logger.Warn().Err(err).Str("event", "capture.read_failed").Msg("frame read failed, retrying")

	select {
	case s.out <- delivery{err: fmt.Errorf("%w: read frame: %w", ErrCapture, err)}:
	case <-s.stop:
		return false
	}
	select {
	case <-time.After(s.retryDelay()):
		return true
	case <-s.stop:
		return false
	}
}

func (s *Stream) retryDelay() time.Duration {
	if s.cfg.FPS <= 0 {
		return 10 * time.Millisecond
	}
	return time.Second / time.Duration(s.cfg.FPS)
}

func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, fs.ErrClosed)
}

func (s *Stream) finish(err error, partial int) {
	term := ErrEndOfStream
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, fs.ErrClosed):
		metrics.IncCaptureError("end_of_stream")
	default:
		term = fmt.Errorf("%w: read failed after %d bytes of a frame: %w", ErrDeviceLost, partial, err)
		metrics.IncCaptureError("fatal")
		s.logger.Error().Err(err).Str("event", "capture.device_lost").Int("partial", partial).Msg("frame stream broke mid-frame")
	}
	s.mu.Lock()
	if s.termErr == nil {
		s.termErr = term
	}
	s.mu.Unlock()
	s.markFirst()
}

func (s *Stream) markFirst() {
	s.firstOnce.Do(func() { close(s.first) })
}

func (s *Stream) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.termErr == nil {
		return ErrEndOfStream
	}
	return s.termErr
}

// WaitReady blocks until the first frame has been read, the stream ended,
// or ctx is done. It returns the terminal error when the stream ended
// before producing any frame.
func (s *Stream) WaitReady(ctx context.Context) error {
	select {
	case <-s.first:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.read.Load() > 0 {
		return nil
	}
	return s.terminalErr()
}

// Next implements Source. Transient read errors are returned once each.
// Once the stream has ended, Next keeps returning the terminal error.
func (s *Stream) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	select {
	case d, ok := <-s.out:
		if !ok {
			return frame.Frame{}, s.terminalErr()
		}
		return d.f, d.err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// Format implements Source.
func (s *Stream) Format() frame.Format { return s.cfg.Format }

// Stats returns a snapshot of the frame counters.
func (s *Stream) Stats() Stats {
	return Stats{
		Read:                s.read.Load(),
		Delivered:           s.delivered.Load(),
		ReadErrors:          s.readErrors.Load(),
		DroppedCadence:      s.droppedCadence.Load(),
		DroppedBackpressure: s.droppedBackpressure.Load(),
	}
}

// Close implements Source. It releases the producer and waits for the read
// loop to exit.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.termErr == nil {
			s.termErr = ErrEndOfStream
		}
		s.mu.Unlock()
		close(s.stop)
		if s.cfg.OnClose != nil {
			s.closeErr = s.cfg.OnClose()
		}
		<-s.done
		st := s.Stats()
		s.logger.Debug().
			Str("event", "capture.stream_closed").
			Uint64("read", st.Read).
			Uint64("delivered", st.Delivered).
			Uint64("dropped_cadence", st.DroppedCadence).
			Uint64("dropped_backpressure", st.DroppedBackpressure).
			Msg("frame stream closed")
	})
	return s.closeErr
}

// Done is closed when the read loop has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

var _ Source = (*Stream)(nil)
