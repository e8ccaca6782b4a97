// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package compress re-encodes closed segments once they have cooled down.
//
// Segments are enqueued when the segmenter closes them and become due after
// a configurable delay. A bounded number of workers transcode due segments;
// the original file is removed only after the compressed copy was verified.
// Failed attempts are retried with exponential backoff until the attempt
// budget is exhausted, after which the segment is marked failed and the
// original kept.
package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
	"github.com/ManuGH/smartcam/internal/segment"
	"github.com/ManuGH/smartcam/internal/telemetry"
)

// Config controls scheduling.
type Config struct {
	// Delay is the cooldown between a segment closing and its compression.
	Delay time.Duration
	// Workers bounds concurrent transcodes. Values < 1 mean 1.
	Workers int
	// TickInterval is how often Run looks for due jobs.
	TickInterval time.Duration
	// MaxAttempts is the attempt budget per segment. Values < 1 mean 1.
	MaxAttempts int
	// Backoff is the delay after the first failure; it doubles per attempt.
	Backoff time.Duration
	// BackoffMax caps the retry delay (0 = uncapped).
	BackoffMax time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// ResultFunc receives every terminal outcome. It is called from worker
// goroutines and must not block for long.
type ResultFunc func(Result)

// Scheduler owns the compression queue.
type Scheduler struct {
	cfg        Config
	transcoder Transcoder
	onResult   ResultFunc
	sem        *semaphore.Weighted
	logger     zerolog.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	jobs     map[string]*job
	order    []string
	inFlight map[string]struct{}

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a scheduler. onResult may be nil.
func New(cfg Config, transcoder Transcoder, onResult ResultFunc) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:        cfg,
		transcoder: transcoder,
		onResult:   onResult,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		logger:     log.WithComponent("compress"),
		tracer:     telemetry.Tracer("smartcam/compress"),
		jobs:       make(map[string]*job),
		inFlight:   make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue schedules a closed segment for compression after the configured
// delay. Enqueueing a segment that is already queued is a no-op.
func (s *Scheduler) Enqueue(seg *segment.Segment) error {
	return s.EnqueueAt(seg, s.cfg.Now())
}

// EnqueueAt is Enqueue with an explicit close time, used when recovering
// segments that were closed before a restart.
func (s *Scheduler) EnqueueAt(seg *segment.Segment, closedAt time.Time) error {
	if seg == nil {
		return fmt.Errorf("%w: nil segment", ErrNotClosed)
	}
	if st := seg.State(); st != segment.StateClosed {
		return fmt.Errorf("%w: %s is %s", ErrNotClosed, seg.ID, st)
	}

	s.mu.Lock()
	if _, ok := s.jobs[seg.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	j := &job{
		seg:       seg,
		notBefore: closedAt.Add(s.cfg.Delay),
		retry:     newRetryBackOff(s.cfg.Backoff, s.cfg.BackoffMax),
	}
	s.jobs[seg.ID] = j
	s.order = append(s.order, seg.ID)
	s.updateDepthLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("event", "compress.enqueued").
		Str(log.FieldSegmentID, seg.ID).
		Str(log.FieldPath, seg.Path).
		Time("not_before", j.notBefore).
		Msg("segment queued for compression")
	s.notify()
	return nil
}

// Tick starts workers for every due job, as far as worker slots allow, and
// returns how many were started. Workers inherit ctx; cancelling it aborts
// running transcodes and returns their jobs to the queue.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.terminal || now.Before(j.notBefore) {
			continue
		}
		if _, busy := s.inFlight[j.seg.ID]; busy {
			continue
		}
		due = append(due, j)
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].notBefore.Equal(due[b].notBefore) {
			return due[a].notBefore.Before(due[b].notBefore)
		}
		return due[a].seg.Index < due[b].seg.Index
	})

	started := 0
	for _, j := range due {
		if ctx.Err() != nil || !s.sem.TryAcquire(1) {
			break
		}
		if err := j.seg.Transition(segment.StateCompressing, nil); err != nil {
			s.sem.Release(1)
			s.logger.Error().Err(err).
				Str("event", "compress.skip").
				Str(log.FieldSegmentID, j.seg.ID).
				Msg("segment cannot be compressed, dropping job")
			delete(s.jobs, j.seg.ID)
			s.removeOrderLocked(j.seg.ID)
			continue
		}
		s.inFlight[j.seg.ID] = struct{}{}
		j.attempts++
		attempt := j.attempts
		started++
		s.wg.Add(1)
		go s.process(ctx, j, attempt)
	}
	s.updateDepthLocked()
	s.mu.Unlock()
	return started
}

// Run ticks until ctx is cancelled, then waits for running workers.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.logger.Info().
		Str("event", "compress.started").
		Int("workers", s.cfg.Workers).
		Dur("delay", s.cfg.Delay).
		Msg("compression scheduler started")

	for {
		s.Tick(ctx, s.cfg.Now())
		select {
		case <-ctx.Done():
			s.logger.Info().Str("event", "compress.stopped").Msg("compression scheduler stopped")
			return nil
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// Wait blocks until all running workers returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Jobs returns a snapshot of all queued jobs, in enqueue order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		j := s.jobs[id]
		_, busy := s.inFlight[id]
		out = append(out, j.snapshot(busy))
	}
	return out
}

// Pending returns the number of non-terminal jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// Acknowledge removes a terminal job from the queue.
func (s *Scheduler) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if !j.terminal {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	delete(s.jobs, id)
	s.removeOrderLocked(id)
	return nil
}

func (s *Scheduler) process(ctx context.Context, j *job, attempt int) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	seg := j.seg
	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)
	ctx = log.ContextWithSegmentID(ctx, seg.ID)
	logger := log.WithContext(ctx, s.logger).With().Int(log.FieldAttempt, attempt).Logger()

	out := segment.CompressedPath(seg.Path)
	ctx, span := s.tracer.Start(ctx, "compress.transcode",
		trace.WithAttributes(telemetry.SegmentAttributes(seg.ID, seg.Path, seg.Info().Frames)...),
		trace.WithAttributes(telemetry.TranscodeAttributes(runID, out, attempt)...),
	)
	defer span.End()

	var originalSize int64
	if fi, err := os.Stat(seg.Path); err == nil {
		originalSize = fi.Size()
	}

	metrics.CompressionInFlight.Inc()
	logger.Info().Str("event", "compress.attempt").Str(log.FieldPath, seg.Path).Msg("transcode started")
	start := time.Now()
	err := s.transcoder.Transcode(ctx, seg.Path, out)
	if err == nil {
		err = verifyOutput(out)
	}
	took := time.Since(start)
	metrics.CompressionInFlight.Dec()

	switch {
	case err != nil && ctx.Err() != nil:
		metrics.CompressionAttempts.WithLabelValues("cancelled").Inc()
		span.SetStatus(codes.Error, "cancelled")
		s.requeue(j, logger)
	case err != nil:
		metrics.CompressionAttempts.WithLabelValues("failure").Inc()
		metrics.TranscodeDuration.WithLabelValues("failure").Observe(took.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(err, "transcode_failure")...)
		s.fail(j, err, runID, logger)
	default:
		metrics.CompressionAttempts.WithLabelValues("success").Inc()
		metrics.TranscodeDuration.WithLabelValues("success").Observe(took.Seconds())
		span.SetStatus(codes.Ok, "")
		s.succeed(j, out, originalSize, runID, took, logger)
	}
}

// requeue returns an interrupted job to the queue without charging the attempt.
func (s *Scheduler) requeue(j *job, logger zerolog.Logger) {
	if err := j.seg.Transition(segment.StateClosed, nil); err != nil {
		logger.Error().Err(err).Msg("failed to return interrupted segment to closed")
	}
	s.mu.Lock()
	j.attempts--
	delete(s.inFlight, j.seg.ID)
	s.updateDepthLocked()
	s.mu.Unlock()
	logger.Info().Str("event", "compress.interrupted").Msg("transcode interrupted, job kept for next start")
}

func (s *Scheduler) fail(j *job, cause error, runID string, logger zerolog.Logger) {
	s.mu.Lock()
	j.lastErr = cause
	attempts := j.attempts
	final := attempts >= s.cfg.MaxAttempts
	if final {
		j.terminal = true
	} else {
		j.notBefore = s.cfg.Now().Add(j.retry.NextBackOff())
	}
	notBefore := j.notBefore
	s.mu.Unlock()

	next := segment.StateClosed
	if final {
		next = segment.StateFailed
	}
	if err := j.seg.Transition(next, cause); err != nil {
		logger.Error().Err(err).Msg("segment transition failed")
	}

	s.mu.Lock()
	delete(s.inFlight, j.seg.ID)
	s.updateDepthLocked()
	s.mu.Unlock()

	if !final {
		logger.Warn().Err(cause).
			Str("event", "compress.retry").
			Time("not_before", notBefore).
			Msg("transcode failed, will retry")
		return
	}

	metrics.CompressionJobs.WithLabelValues("failed").Inc()
	logger.Error().Err(cause).
		Str("event", "compress.failed").
		Str(log.FieldPath, j.seg.Path).
		Msg("compression failed permanently, original kept")
	s.report(Result{
		Segment:      j.seg.Info(),
		OriginalPath: j.seg.Path,
		Success:      false,
		Attempts:     attempts,
		Err:          cause,
		RunID:        runID,
	})
}

func (s *Scheduler) succeed(j *job, out string, originalSize int64, runID string, took time.Duration, logger zerolog.Logger) {
	var compressedSize int64
	if fi, err := os.Stat(out); err == nil {
		compressedSize = fi.Size()
	}
	if err := os.Remove(j.seg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str(log.FieldPath, j.seg.Path).Msg("failed to remove original after compression")
	} else if saved := originalSize - compressedSize; saved > 0 {
		metrics.BytesSaved.Add(float64(saved))
	}

	j.seg.SetCompressedPath(out)
	if err := j.seg.Transition(segment.StateDone, nil); err != nil {
		logger.Error().Err(err).Msg("segment transition failed")
	}

	s.mu.Lock()
	j.terminal = true
	j.lastErr = nil
	attempts := j.attempts
	delete(s.inFlight, j.seg.ID)
	s.updateDepthLocked()
	s.mu.Unlock()

	metrics.CompressionJobs.WithLabelValues("done").Inc()
	logger.Info().
		Str("event", "compress.done").
		Str(log.FieldCompressedPath, out).
		Int64("original_bytes", originalSize).
		Int64("compressed_bytes", compressedSize).
		Dur("took", took).
		Msg("segment compressed")
	s.report(Result{
		Segment:        j.seg.Info(),
		OriginalPath:   j.seg.Path,
		CompressedPath: out,
		Success:        true,
		Attempts:       attempts,
		RunID:          runID,
	})
}

func (s *Scheduler) report(r Result) {
	if s.onResult != nil {
		s.onResult(r)
	}
	s.notify()
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) pendingLocked() int {
	n := 0
	for _, j := range s.jobs {
		if !j.terminal {
			n++
		}
	}
	return n
}

func (s *Scheduler) updateDepthLocked() {
	metrics.CompressionQueueDepth.Set(float64(s.pendingLocked()))
}

func (s *Scheduler) removeOrderLocked(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func verifyOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: output missing: %w", ErrTranscodeFailure, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: empty output %s", ErrTranscodeFailure, path)
	}
	return nil
}
