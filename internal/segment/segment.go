// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package segment turns motion decisions into bounded video segments.
package segment

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a segment.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
	StateCompressing
	StateDone
	StateFailed
)

var stateNames = [...]string{"open", "closing", "closed", "compressing", "done", "failed"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown segment state %q", s)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// allowed lists legal transitions. Compressing -> Closed is a failed attempt
// that will be retried.
var allowed = map[State][]State{
	StateOpen:        {StateClosing, StateFailed},
	StateClosing:     {StateClosed, StateFailed},
	StateClosed:      {StateCompressing, StateFailed},
	StateCompressing: {StateClosed, StateDone, StateFailed},
}

// Segment is one contiguous recording. ID, Index and Path never change;
// Index increases monotonically within the daemon process. The rest is
// guarded because the segmenter and the compression workers update it from
// different goroutines.
type Segment struct {
	ID    string
	Index uint64
	Path  string

	mu             sync.RWMutex
	start          time.Time
	end            time.Time
	frames         int
	state          State
	err            error
	compressedPath string
}

// Info is a point-in-time copy of a Segment.
type Info struct {
	ID             string
	Index          uint64
	Path           string
	CompressedPath string
	Start          time.Time
	End            time.Time
	Frames         int
	State          State
	Err            error
}

// Duration is End - Start.
func (i Info) Duration() time.Duration { return i.End.Sub(i.Start) }

func newSegment(id string, index uint64, path string) *Segment {
	return &Segment{ID: id, Index: index, Path: path, state: StateOpen}
}

// Restore rebuilds a segment from persisted info, e.g. after a restart.
func Restore(info Info) *Segment {
	return &Segment{
		ID:             info.ID,
		Index:          info.Index,
		Path:           info.Path,
		start:          info.Start,
		end:            info.End,
		frames:         info.Frames,
		state:          info.State,
		err:            info.Err,
		compressedPath: info.CompressedPath,
	}
}

// Info returns a snapshot of the segment.
func (s *Segment) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:             s.ID,
		Index:          s.Index,
		Path:           s.Path,
		CompressedPath: s.compressedPath,
		Start:          s.start,
		End:            s.end,
		Frames:         s.frames,
		State:          s.state,
		Err:            s.err,
	}
}

// State returns the current state.
func (s *Segment) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the segment to next, recording cause (may be nil).
func (s *Segment) Transition(next State, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ok := range allowed[s.state] {
		if ok == next {
			s.state = next
			if cause != nil || next == StateDone {
				s.err = cause
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
}

// SetCompressedPath records where the compressed copy was written.
func (s *Segment) SetCompressedPath(path string) {
	s.mu.Lock()
	s.compressedPath = path
	s.mu.Unlock()
}

func (s *Segment) recordFrame(ts time.Time) {
	s.mu.Lock()
	if s.frames == 0 {
		s.start = ts
	}
	s.end = ts
	s.frames++
	s.mu.Unlock()
}
