// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/smartcam/internal/segment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type resultLog struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultLog) add(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultLog) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func closedSegment(t *testing.T, dir string, index uint64) *segment.Segment {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("segment_%d.avi", index))
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))
	return segment.Restore(segment.Info{
		ID:     fmt.Sprintf("seg-%04d", index),
		Index:  index,
		Path:   path,
		Start:  t0,
		End:    t0.Add(10 * time.Second),
		Frames: 100,
		State:  segment.StateClosed,
	})
}

func writingTranscoder(calls *atomic.Int32) TranscoderFunc {
	return func(_ context.Context, in, out string) error {
		calls.Add(1)
		return os.WriteFile(out, []byte("compressed"), 0o600)
	}
}

func failingTranscoder(calls *atomic.Int32) TranscoderFunc {
	return func(context.Context, string, string) error {
		calls.Add(1)
		return fmt.Errorf("%w: exit status 1", ErrTranscodeFailure)
	}
}

func TestScheduler_WaitsForDelay(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: t0}
	var calls atomic.Int32
	results := &resultLog{}
	s := New(Config{Delay: 30 * time.Minute, Now: clock.Now}, writingTranscoder(&calls), results.add)

	seg := closedSegment(t, dir, 1)
	require.NoError(t, s.Enqueue(seg))

	assert.Equal(t, 0, s.Tick(context.Background(), t0.Add(29*time.Minute)))
	assert.Equal(t, segment.StateClosed, seg.State())

	assert.Equal(t, 1, s.Tick(context.Background(), t0.Add(30*time.Minute)))
	s.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, segment.StateDone, seg.State())
	assert.NoFileExists(t, seg.Path)
	assert.FileExists(t, segment.CompressedPath(seg.Path))

	got := results.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.Equal(t, 1, got[0].Attempts)
	assert.Equal(t, seg.Path, got[0].OriginalPath)
	assert.Equal(t, segment.CompressedPath(seg.Path), got[0].CompressedPath)
	assert.Equal(t, segment.CompressedPath(seg.Path), got[0].Segment.CompressedPath)
	assert.NotEmpty(t, got[0].RunID)
}

func TestScheduler_EnqueueRequiresClosedSegment(t *testing.T) {
	s := New(Config{}, TranscoderFunc(func(context.Context, string, string) error { return nil }), nil)

	open := segment.Restore(segment.Info{ID: "open", State: segment.StateOpen})
	err := s.Enqueue(open)
	require.ErrorIs(t, err, ErrNotClosed)
	assert.ErrorIs(t, s.Enqueue(nil), ErrNotClosed)
	assert.Empty(t, s.Jobs())
}

func TestScheduler_DuplicateEnqueueIsNoop(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := New(Config{Delay: time.Minute, Now: clock.Now}, TranscoderFunc(func(context.Context, string, string) error { return nil }), nil)
	seg := closedSegment(t, t.TempDir(), 1)

	require.NoError(t, s.Enqueue(seg))
	clock.Advance(10 * time.Minute)
	require.NoError(t, s.Enqueue(seg))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, t0.Add(time.Minute), jobs[0].NotBefore, "re-enqueue must not push the deadline")
	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_AlwaysFailingExhaustsAttempts(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: t0}
	var calls atomic.Int32
	results := &resultLog{}
	s := New(Config{
		MaxAttempts: 3,
		Backoff:     time.Minute,
		BackoffMax:  10 * time.Minute,
		Now:         clock.Now,
	}, failingTranscoder(&calls), results.add)

	seg := closedSegment(t, dir, 1)
	require.NoError(t, s.Enqueue(seg))
	ctx := context.Background()

	require.Equal(t, 1, s.Tick(ctx, clock.Now()))
	s.Wait()
	assert.Equal(t, segment.StateClosed, seg.State())
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, t0.Add(time.Minute), jobs[0].NotBefore)
	require.ErrorIs(t, jobs[0].LastErr, ErrTranscodeFailure)

	// Not due before the backoff expires.
	assert.Equal(t, 0, s.Tick(ctx, clock.Advance(59*time.Second)))

	require.Equal(t, 1, s.Tick(ctx, clock.Advance(time.Second)))
	s.Wait()
	jobs = s.Jobs()
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.Equal(t, clock.Now().Add(2*time.Minute), jobs[0].NotBefore)

	require.Equal(t, 1, s.Tick(ctx, clock.Advance(2*time.Minute)))
	s.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, segment.StateFailed, seg.State())
	assert.FileExists(t, seg.Path, "original must be kept after failure")
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, s.Tick(ctx, clock.Advance(time.Hour)), "failed jobs are never retried")

	got := results.all()
	require.Len(t, got, 1)
	assert.False(t, got[0].Success)
	assert.Equal(t, 3, got[0].Attempts)
	assert.ErrorIs(t, got[0].Err, ErrTranscodeFailure)
	assert.Equal(t, segment.StateFailed, got[0].Segment.State)
}

func TestScheduler_EmptyOutputIsFailure(t *testing.T) {
	clock := &fakeClock{now: t0}
	results := &resultLog{}
	s := New(Config{Now: clock.Now}, TranscoderFunc(func(_ context.Context, _, out string) error {
		return os.WriteFile(out, nil, 0o600)
	}), results.add)

	seg := closedSegment(t, t.TempDir(), 1)
	require.NoError(t, s.Enqueue(seg))
	require.Equal(t, 1, s.Tick(context.Background(), clock.Now()))
	s.Wait()

	assert.Equal(t, segment.StateFailed, seg.State())
	assert.FileExists(t, seg.Path)
	got := results.all()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, ErrTranscodeFailure)
}

func TestScheduler_AtMostOneWorkerPerSegment(t *testing.T) {
	clock := &fakeClock{now: t0}
	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	s := New(Config{Workers: 4, Now: clock.Now}, TranscoderFunc(func(_ context.Context, _, out string) error {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		<-release
		running.Add(-1)
		return os.WriteFile(out, []byte("x"), 0o600)
	}), nil)

	seg := closedSegment(t, t.TempDir(), 1)
	require.NoError(t, s.Enqueue(seg))

	ctx := context.Background()
	assert.Equal(t, 1, s.Tick(ctx, clock.Now()))
	assert.Equal(t, 0, s.Tick(ctx, clock.Now()))
	assert.Equal(t, 0, s.Tick(ctx, clock.Now()))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].InFlight)
	assert.Equal(t, segment.StateCompressing, jobs[0].Segment.State)

	close(release)
	s.Wait()
	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, segment.StateDone, seg.State())
}

func TestScheduler_WorkerBound(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: t0}
	release := make(chan struct{})
	var calls atomic.Int32
	s := New(Config{Workers: 1, Now: clock.Now}, TranscoderFunc(func(_ context.Context, _, out string) error {
		calls.Add(1)
		<-release
		return os.WriteFile(out, []byte("x"), 0o600)
	}), nil)

	first := closedSegment(t, dir, 1)
	second := closedSegment(t, dir, 2)
	require.NoError(t, s.Enqueue(first))
	require.NoError(t, s.Enqueue(second))

	ctx := context.Background()
	require.Equal(t, 1, s.Tick(ctx, clock.Now()))
	assert.Equal(t, 0, s.Tick(ctx, clock.Now()), "only one worker slot")
	assert.Equal(t, segment.StateCompressing, first.State(), "lower index goes first")
	assert.Equal(t, segment.StateClosed, second.State())

	close(release)
	s.Wait()
	require.Equal(t, 1, s.Tick(ctx, clock.Now()))
	s.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, segment.StateDone, first.State())
	assert.Equal(t, segment.StateDone, second.State())
}

func TestScheduler_CancelReturnsJobToQueue(t *testing.T) {
	clock := &fakeClock{now: t0}
	started := make(chan struct{})
	results := &resultLog{}
	s := New(Config{Now: clock.Now}, TranscoderFunc(func(ctx context.Context, _, _ string) error {
		close(started)
		<-ctx.Done()
		return fmt.Errorf("%w: %w", ErrTranscodeFailure, ctx.Err())
	}), results.add)

	seg := closedSegment(t, t.TempDir(), 1)
	require.NoError(t, s.Enqueue(seg))

	ctx, cancel := context.WithCancel(context.Background())
	require.Equal(t, 1, s.Tick(ctx, clock.Now()))
	<-started
	cancel()
	s.Wait()

	assert.Equal(t, segment.StateClosed, seg.State())
	assert.FileExists(t, seg.Path)
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 0, jobs[0].Attempts, "interrupted attempts are not charged")
	assert.False(t, jobs[0].InFlight)
	assert.Empty(t, results.all())
}

func TestScheduler_Acknowledge(t *testing.T) {
	clock := &fakeClock{now: t0}
	var calls atomic.Int32
	s := New(Config{Delay: time.Minute, Now: clock.Now}, writingTranscoder(&calls), nil)

	require.ErrorIs(t, s.Acknowledge("missing"), ErrUnknownJob)

	seg := closedSegment(t, t.TempDir(), 1)
	require.NoError(t, s.Enqueue(seg))
	require.ErrorIs(t, s.Acknowledge(seg.ID), ErrJobActive)

	require.Equal(t, 1, s.Tick(context.Background(), clock.Advance(time.Minute)))
	s.Wait()

	jobs := s.Jobs()
	require.Len(t, jobs, 1, "terminal jobs stay listed until acknowledged")
	assert.True(t, jobs[0].Terminal())

	require.NoError(t, s.Acknowledge(seg.ID))
	assert.Empty(t, s.Jobs())
	assert.ErrorIs(t, s.Acknowledge(seg.ID), ErrUnknownJob)
}

func TestScheduler_RunDispatchesOnEnqueue(t *testing.T) {
	var calls atomic.Int32
	done := make(chan Result, 1)
	s := New(Config{TickInterval: time.Hour}, writingTranscoder(&calls), func(r Result) { done <- r })

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	seg := closedSegment(t, t.TempDir(), 7)
	require.NoError(t, s.Enqueue(seg))

	select {
	case r := <-done:
		assert.True(t, r.Success)
		assert.Equal(t, seg.ID, r.Segment.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not dispatched after enqueue")
	}

	cancel()
	require.NoError(t, <-runErr)
}

func TestScheduler_EnqueueAtUsesCloseTime(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := New(Config{Delay: 30 * time.Minute, Now: clock.Now}, TranscoderFunc(func(context.Context, string, string) error {
		return errors.New("unused")
	}), nil)
	seg := closedSegment(t, t.TempDir(), 1)

	require.NoError(t, s.EnqueueAt(seg, t0.Add(-time.Hour)))
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, t0.Add(-30*time.Minute), jobs[0].NotBefore)
}

func TestRetryBackOff(t *testing.T) {
	tests := []struct {
		name        string
		base, limit time.Duration
		want        []time.Duration
	}{
		{
			name: "capped",
			base: 30 * time.Second, limit: 10 * time.Minute,
			want: []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 10 * time.Minute, 10 * time.Minute},
		},
		{
			name: "uncapped",
			base: 30 * time.Second,
			want: []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute},
		},
		{
			name: "no delay",
			limit: time.Minute,
			want:  []time.Duration{0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newRetryBackOff(tt.base, tt.limit)
			got := make([]time.Duration, 0, len(tt.want))
			for range tt.want {
				got = append(got, b.NextBackOff())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
