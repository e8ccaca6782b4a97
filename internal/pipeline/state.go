// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the live state of one pipeline run. The capture goroutine writes
// it; any goroutine may read it through Snapshot.
type State struct {
	running atomic.Bool
	motion  atomic.Bool

	framesProcessed    atomic.Uint64
	segmentsClosed     atomic.Uint64
	segmentsFailed     atomic.Uint64
	compressionsDone   atomic.Uint64
	compressionsFailed atomic.Uint64
	captureErrors      atomic.Uint64
	lastFrameAt        atomic.Int64

	mu        sync.RWMutex
	phase     string
	current   string
	startedAt time.Time
	lastErr   string
}

// Status is a point-in-time view of a run, served by the API.
type Status struct {
	Running            bool      `json:"running"`
	Device             string    `json:"device"`
	Phase              string    `json:"phase"`
	Motion             bool      `json:"motion"`
	CurrentSegment     string    `json:"current_segment,omitempty"`
	FramesProcessed    uint64    `json:"frames_processed"`
	SegmentsClosed     uint64    `json:"segments_closed"`
	SegmentsFailed     uint64    `json:"segments_failed"`
	CompressionsDone   uint64    `json:"compressions_done"`
	CompressionsFailed uint64    `json:"compressions_failed"`
	CompressionPending int       `json:"compression_pending"`
	CaptureErrors      uint64    `json:"capture_errors"`
	StartedAt          time.Time `json:"started_at"`
	LastFrameAt        time.Time `json:"last_frame_at"`
	LastError          string    `json:"last_error,omitempty"`
}

func (s *State) setPhase(phase, current string) {
	s.mu.Lock()
	s.phase, s.current = phase, current
	s.mu.Unlock()
}

func (s *State) setError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *State) frame(at time.Time) {
	s.framesProcessed.Add(1)
	s.lastFrameAt.Store(at.UnixNano())
}

// Snapshot copies the state.
func (s *State) Snapshot() Status {
	s.mu.RLock()
	st := Status{
		Phase:          s.phase,
		CurrentSegment: s.current,
		StartedAt:      s.startedAt,
		LastError:      s.lastErr,
	}
	s.mu.RUnlock()

	st.Running = s.running.Load()
	st.Motion = s.motion.Load()
	st.FramesProcessed = s.framesProcessed.Load()
	st.SegmentsClosed = s.segmentsClosed.Load()
	st.SegmentsFailed = s.segmentsFailed.Load()
	st.CompressionsDone = s.compressionsDone.Load()
	st.CompressionsFailed = s.compressionsFailed.Load()
	st.CaptureErrors = s.captureErrors.Load()
	if ns := s.lastFrameAt.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns).UTC()
	}
	return st
}
