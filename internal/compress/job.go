// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package compress

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ManuGH/smartcam/internal/segment"
)

// Job is a snapshot of one queued segment.
type Job struct {
	Segment   segment.Info
	NotBefore time.Time
	Attempts  int
	LastErr   error
	InFlight  bool
}

// Terminal reports whether the job finished (done or failed).
func (j Job) Terminal() bool { return j.Segment.State.Terminal() }

// Result describes the outcome of a job that reached a terminal state.
type Result struct {
	Segment        segment.Info
	OriginalPath   string
	CompressedPath string
	Success        bool
	Attempts       int
	Err            error
	RunID          string
}

// job is the mutable queue entry, guarded by Scheduler.mu.
type job struct {
	seg       *segment.Segment
	notBefore time.Time
	attempts  int
	lastErr   error
	terminal  bool
	retry     *backoff.ExponentialBackOff
}

func (j *job) snapshot(inFlight bool) Job {
	return Job{
		Segment:   j.seg.Info(),
		NotBefore: j.notBefore,
		Attempts:  j.attempts,
		LastErr:   j.lastErr,
		InFlight:  inFlight,
	}
}

// newRetryBackOff yields base, 2*base, 4*base, ... capped at limit.
// A limit of 0 leaves the delay uncapped.
func newRetryBackOff(base, limit time.Duration) *backoff.ExponentialBackOff {
	if limit <= 0 {
		limit = math.MaxInt64
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval: max(0, base),
		Multiplier:      2,
		MaxInterval:     limit,
	}
	b.Reset()
	return b
}
