// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package segment

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
	"github.com/ManuGH/smartcam/internal/motion"
	"github.com/rs/zerolog"
)

// Phase is the segmenter state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhasePostRoll
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhasePostRoll:
		return "post_roll"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PreRoll is the read side of the pre-roll buffer.
type PreRoll interface {
	Snapshot() []frame.Frame
}

// Handoff receives every segment leaving the segmenter, closed or failed.
type Handoff func(*Segment)

// Config configures a Segmenter.
type Config struct {
	FPS      int
	PostRoll time.Duration
	// MaxDuration rolls over to a new segment once reached. 0 disables it.
	MaxDuration time.Duration
}

// Segmenter is the IDLE / RECORDING / POST_ROLL state machine. It owns at
// most one open segment. Not safe for concurrent use: the capture loop is
// its only caller.
type Segmenter struct {
	cfg       Config
	namer     *Namer
	newWriter WriterFactory
	preroll   PreRoll
	handoff   Handoff
	logger    zerolog.Logger

	phase         Phase
	current       *Segment
	w             Writer
	lastMotion    time.Time
	postRollSince time.Time
}

// lastIndex numbers segments across all segmenters of the process, so
// indexes keep increasing over pipeline restarts. It starts over when the
// daemon restarts; IDs stay unique because they carry the trigger time.
var lastIndex atomic.Uint64

// NewSegmenter returns an idle Segmenter.
func NewSegmenter(cfg Config, namer *Namer, newWriter WriterFactory, preroll PreRoll, handoff Handoff) *Segmenter {
	if handoff == nil {
		handoff = func(*Segment) {}
	}
	s := &Segmenter{
		cfg:       cfg,
		namer:     namer,
		newWriter: newWriter,
		preroll:   preroll,
		handoff:   handoff,
		logger:    log.WithComponent("segmenter"),
	}
	metrics.SetSegmenterState(s.phase.String())
	return s
}

// Phase returns the current state.
func (s *Segmenter) Phase() Phase { return s.phase }

// Current returns the open segment, or nil.
func (s *Segmenter) Current() *Segment { return s.current }

// Step advances the state machine by one frame. It must be called before f
// is pushed into the pre-roll buffer. Errors are writer failures; the
// affected segment has already been failed and handed off, and the
// segmenter is idle again.
func (s *Segmenter) Step(f frame.Frame, r motion.Result) error {
	switch s.phase {
	case PhaseIdle:
		if !r.Triggered {
			return nil
		}
		return s.open(f, s.preroll.Snapshot())

	case PhasePostRoll:
		if f.Timestamp.Sub(s.postRollSince) >= s.cfg.PostRoll {
			err := s.close()
			if err == nil && r.Triggered {
				err = s.open(f, s.preroll.Snapshot())
			}
			return err
		}
	}

	if s.cfg.MaxDuration > 0 && f.Timestamp.Sub(s.current.Info().Start) >= s.cfg.MaxDuration {
		if err := s.rollover(f); err != nil {
			return err
		}
	} else if err := s.write(f); err != nil {
		return err
	}

	switch {
	case r.Motion:
		s.lastMotion = f.Timestamp
		s.setPhase(PhaseRecording)
	case s.phase == PhaseRecording:
		s.postRollSince = f.Timestamp
		s.setPhase(PhasePostRoll)
	}
	return nil
}

// Shutdown closes the open segment, if any, and hands it off.
func (s *Segmenter) Shutdown() error {
	if s.current == nil {
		return nil
	}
	return s.close()
}

func (s *Segmenter) open(trigger frame.Frame, pre []frame.Frame) error {
	path, err := s.namer.Next(trigger.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: allocate name: %w", ErrWriter, err)
	}

	index := lastIndex.Add(1)
	seg := newSegment(fmt.Sprintf("%s-%04d", trigger.Timestamp.UTC().Format("20060102T150405.000Z"), index), index, path)

	w, err := s.newWriter(path, trigger.Format, s.cfg.FPS)
	if err != nil {
		werr := fmt.Errorf("%w: open %s: %w", ErrWriter, path, err)
		_ = seg.Transition(StateFailed, werr)
		s.finish(seg, "failed")
		return werr
	}
	s.current = seg
	s.w = Sequenced(w, path)
	s.lastMotion = trigger.Timestamp
	s.setPhase(PhaseRecording)

	s.logger.Info().
		Str("event", "segment.opened").
		Str(log.FieldSegmentID, seg.ID).
		Str(log.FieldPath, path).
		Int("preroll_frames", len(pre)).
		Msg("motion triggered, segment opened")

	for _, pf := range pre {
		if err := s.write(pf); err != nil {
			return err
		}
	}
	return s.write(trigger)
}

func (s *Segmenter) write(f frame.Frame) error {
	if err := s.w.Append(f); err != nil {
		werr := fmt.Errorf("%w: append seq %d: %w", ErrWriter, f.Seq, err)
		s.fail(werr)
		return werr
	}
	s.current.recordFrame(f.Timestamp)
	return nil
}

func (s *Segmenter) rollover(f frame.Frame) error {
	phase := s.phase
	s.logger.Info().
		Str("event", "segment.rollover").
		Str(log.FieldSegmentID, s.current.ID).
		Dur("max_duration", s.cfg.MaxDuration).
		Msg("segment reached maximum duration")
	if err := s.close(); err != nil {
		return err
	}
	if err := s.open(f, nil); err != nil {
		return err
	}
	s.setPhase(phase)
	return nil
}

func (s *Segmenter) close() error {
	seg, w := s.current, s.w
	s.current, s.w = nil, nil
	s.setPhase(PhaseIdle)

	_ = seg.Transition(StateClosing, nil)
	meta, err := w.Close()
	if err != nil {
		werr := fmt.Errorf("%w: close %s: %w", ErrWriter, seg.Path, err)
		_ = seg.Transition(StateFailed, werr)
		s.finish(seg, "failed")
		return werr
	}
	_ = seg.Transition(StateClosed, nil)

	s.logger.Info().
		Str("event", "segment.closed").
		Str(log.FieldSegmentID, seg.ID).
		Str(log.FieldPath, seg.Path).
		Int(log.FieldFrames, meta.Frames).
		Int64("bytes", meta.Bytes).
		Msg("segment closed")
	s.finish(seg, "closed")
	return nil
}

// fail abandons the open segment after a writer error. The partial file is kept.
func (s *Segmenter) fail(cause error) {
	seg, w := s.current, s.w
	s.current, s.w = nil, nil
	s.setPhase(PhaseIdle)

	_, _ = w.Close()
	_ = seg.Transition(StateFailed, cause)
	s.logger.Error().
		Err(cause).
		Str("event", "segment.failed").
		Str(log.FieldSegmentID, seg.ID).
		Str(log.FieldPath, seg.Path).
		Msg("segment writer failed, partial file kept")
	s.finish(seg, "failed")
}

func (s *Segmenter) finish(seg *Segment, result string) {
	metrics.RecordSegment(result, seg.Info().Frames)
	s.handoff(seg)
}

func (s *Segmenter) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Debug().
		Str("event", "segmenter.phase").
		Str(log.FieldOldState, s.phase.String()).
		Str(log.FieldNewState, p.String()).
		Msg("segmenter state changed")
	s.phase = p
	metrics.SetSegmenterState(p.String())
}
