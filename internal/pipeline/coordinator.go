// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline runs one capture session: frames flow from the source
// through the motion detector into the segmenter, closed segments go to the
// compression scheduler, and everything observable is published on the
// notification hub.
//
// A Coordinator is built from a config snapshot and runs once. Configuration
// changes are applied by stopping it and starting a new one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/smartcam/internal/capture"
	"github.com/ManuGH/smartcam/internal/catalog"
	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
	"github.com/ManuGH/smartcam/internal/motion"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/preroll"
	"github.com/ManuGH/smartcam/internal/segment"
	"github.com/ManuGH/smartcam/internal/validate"
)

const catalogTimeout = 5 * time.Second

// Catalog records segments and finds work left over from earlier runs.
type Catalog interface {
	Upsert(ctx context.Context, info segment.Info) error
	Recover(ctx context.Context, dir, prefix string) ([]catalog.Recovered, error)
}

// Deps are the collaborators of a run. Opener, Writers and Transcoder are
// required; the rest is optional.
type Deps struct {
	Opener     capture.Opener
	Writers    segment.WriterFactory
	Transcoder compress.Transcoder

	// Hub receives notifications. A private hub is created when nil.
	Hub *notify.Hub
	// Catalog, when set, is updated on every segment change and consulted
	// for recovery at Start.
	Catalog Catalog
	// Model overrides the running-average background model.
	Model motion.BackgroundModel
	// Now is the scheduler clock. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator owns one pipeline run.
type Coordinator struct {
	cfg    config.Snapshot
	deps   Deps
	hub    *notify.Hub
	state  State
	logger zerolog.Logger

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	scheduler *compress.Scheduler
	preview   atomic.Pointer[notify.Preview]
}

// New validates deps and builds a coordinator for cfg.
func New(cfg config.Snapshot, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Opener == nil:
		return nil, errors.New("pipeline: frame source opener is required")
	case deps.Writers == nil:
		return nil, errors.New("pipeline: segment writer factory is required")
	case deps.Transcoder == nil:
		return nil, errors.New("pipeline: transcoder is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	hub := deps.Hub
	if hub == nil {
		hub = notify.NewHub(cfg.Notify.Buffer)
	}
	c := &Coordinator{
		cfg:  cfg,
		deps: deps,
		hub:  hub,
		done: make(chan struct{}),
		logger: log.WithComponent("pipeline").With().
			Str(log.FieldDevice, cfg.Device).
			Logger(),
	}
	c.state.phase = segment.PhaseIdle.String()
	c.scheduler = compress.New(compress.Config{
		Delay:        cfg.CompressAfter,
		Workers:      cfg.Compress.Workers,
		TickInterval: cfg.Compress.TickInterval,
		MaxAttempts:  cfg.Compress.MaxAttempts,
		Backoff:      cfg.Compress.RetryBackoff,
		BackoffMax:   cfg.Compress.RetryBackoffMax,
		Now:          deps.Now,
	}, deps.Transcoder, c.onCompressed)
	return c, nil
}

// Hub returns the notification hub.
func (c *Coordinator) Hub() *notify.Hub { return c.hub }

// Status returns the current run status.
func (c *Coordinator) Status() Status {
	st := c.state.Snapshot()
	st.Device = c.cfg.Device
	st.CompressionPending = c.scheduler.Pending()
	return st
}

// Jobs lists the compression queue.
func (c *Coordinator) Jobs() []compress.Job { return c.scheduler.Jobs() }

// LatestPreview returns the most recent preview, if previews are enabled
// and a frame was processed.
func (c *Coordinator) LatestPreview() (notify.Preview, bool) {
	p := c.preview.Load()
	if p == nil {
		return notify.Preview{}, false
	}
	return *p, true
}

// Start prepares the output directory, opens the device and launches the
// run. It returns once frames are flowing; failures to get there
// (capture.ErrDeviceUnavailable, ErrOutputDirUnwritable) are returned
// synchronously. ctx bounds only the start-up; use Stop to end the run.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	fail := func(err error) error {
		c.err = err
		close(c.done)
		return err
	}

	v := validate.New()
	v.WritableDirectory("out_dir", c.cfg.OutDir)
	if err := v.Err(); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrOutputDirUnwritable, err))
	}

	src, err := c.deps.Opener.Open(ctx, c.cfg.Device, c.cfg.FPS)
	if err != nil {
		c.logger.Error().Err(err).Str("event", "pipeline.open_failed").Msg("failed to open capture device")
		return fail(err)
	}

	model := c.deps.Model
	if model == nil {
		model = motion.NewRunningAverage(motion.RunningAverageConfig{
			Scale:        c.cfg.Detect.Scale,
			Threshold:    c.cfg.Detect.Threshold,
			LearningRate: c.cfg.Detect.LearningRate,
		})
	}
	detector := motion.NewDetector(motion.Config{Area: c.cfg.Area, Hits: c.cfg.Hits}, model)
	buf := preroll.New(preroll.Capacity(c.cfg.PreSeconds, c.cfg.FPS))
	segmenter := segment.NewSegmenter(
		segment.Config{FPS: c.cfg.FPS, PostRoll: c.cfg.PostRoll, MaxDuration: c.cfg.MaxSegment},
		segment.NewNamer(c.cfg.OutDir, c.cfg.Prefix),
		c.deps.Writers,
		buf,
		c.onSegment,
	)

	c.recover(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	schedCtx, schedCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.state.mu.Lock()
	c.state.startedAt = time.Now().UTC()
	c.state.mu.Unlock()
	c.state.running.Store(true)
	c.hub.Publish(notify.PipelineStateChanged{Running: true, State: "running", At: time.Now().UTC()})

	r := &run{c: c, src: src, detector: detector, preroll: buf, segmenter: segmenter}
	var g errgroup.Group
	g.Go(func() error {
		defer schedCancel()
		return r.loop(runCtx)
	})
	g.Go(func() error { return c.scheduler.Run(schedCtx) })
	go func() {
		err := g.Wait()
		cancel()
		c.finish(err)
	}()

	c.logger.Info().
		Str("event", "pipeline.started").
		Int(log.FieldFPS, c.cfg.FPS).
		Str(log.FieldResolution, src.Format().Resolution()).
		Str(log.FieldPath, c.cfg.OutDir).
		Int("preroll_frames", buf.Cap()).
		Msg("pipeline started")
	return nil
}

// Stop ends the run: the capture loop exits after closing any open segment,
// then the compression scheduler stops and running transcodes are cancelled.
// It waits for completion or ctx, whichever comes first. Stop before Start
// is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the run ended and returns why. A run ended by Stop
// returns nil; capture.ErrEndOfStream and ErrCaptureFailed are reported
// wrapped.
func (c *Coordinator) Wait() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	<-c.done
	return c.err
}

// Done is closed when the run ended.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) finish(err error) {
	c.err = err
	c.state.running.Store(false)
	c.state.setError(err)

	reason, state := "stopped", "stopped"
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrEndOfStream):
		reason = "end_of_stream"
	case errors.Is(err, ErrCaptureFailed):
		reason, state = "capture_failed", "failed"
	default:
		reason, state = "error", "failed"
	}
	metrics.IncPipelineRun(reason)

	ev := c.logger.Info()
	if state == "failed" {
		ev = c.logger.Error().Err(err)
	}
	ev.Str("event", "pipeline.stopped").Str("reason", reason).Msg("pipeline stopped")

	c.hub.Publish(notify.PipelineStateChanged{
		Running: false,
		State:   state,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
	close(c.done)
}

// recover re-enqueues segments left uncompressed by an earlier run.
func (c *Coordinator) recover(ctx context.Context) {
	if c.deps.Catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()
	found, err := c.deps.Catalog.Recover(ctx, c.cfg.OutDir, c.cfg.Prefix)
	if err != nil {
		c.logger.Warn().Err(err).Str("event", "pipeline.recover_failed").Msg("recovery scan failed")
		return
	}
	for _, r := range found {
		if err := c.scheduler.EnqueueAt(r.Segment, r.ClosedAt); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldSegmentID, r.Segment.ID).Msg("failed to re-enqueue segment")
		}
	}
}

// onSegment is the segmenter hand-off. It runs on the capture goroutine.
func (c *Coordinator) onSegment(seg *segment.Segment) {
	info := seg.Info()
	c.record(info)
	if info.State == segment.StateClosed {
		c.state.segmentsClosed.Add(1)
		if err := c.scheduler.Enqueue(seg); err != nil {
			c.logger.Error().Err(err).Str(log.FieldSegmentID, seg.ID).Msg("failed to enqueue segment")
		}
	} else {
		c.state.segmentsFailed.Add(1)
		c.state.setError(info.Err)
	}
	c.hub.Publish(notify.SegmentCompleted{
		ID:     info.ID,
		Path:   info.Path,
		Start:  info.Start,
		End:    info.End,
		Frames: info.Frames,
		State:  info.State.String(),
		Err:    notify.ErrString(info.Err),
	})
}

// onCompressed runs on a scheduler worker.
func (c *Coordinator) onCompressed(r compress.Result) {
	c.record(r.Segment)
	if r.Success {
		c.state.compressionsDone.Add(1)
	} else {
		c.state.compressionsFailed.Add(1)
		c.state.setError(r.Err)
	}
	c.hub.Publish(notify.CompressionCompleted{
		ID:             r.Segment.ID,
		OriginalPath:   r.OriginalPath,
		CompressedPath: r.CompressedPath,
		Success:        r.Success,
		Attempts:       r.Attempts,
		Err:            notify.ErrString(r.Err),
	})
	if err := c.scheduler.Acknowledge(r.Segment.ID); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSegmentID, r.Segment.ID).Msg("failed to acknowledge compression result")
	}
}

func (c *Coordinator) record(info segment.Info) {
	if c.deps.Catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()
	if err := c.deps.Catalog.Upsert(ctx, info); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSegmentID, info.ID).Msg("failed to update catalog")
	}
}

// run is the state owned by the capture goroutine.
type run struct {
	c         *Coordinator
	src       capture.Source
	detector  *motion.Detector
	preroll   *preroll.Buffer
	segmenter *segment.Segmenter
	motion    bool
}

func (r *run) loop(ctx context.Context) error {
	c := r.c
	defer func() {
		if err := r.segmenter.Shutdown(); err != nil {
			c.logger.Error().Err(err).Msg("failed to close segment on shutdown")
		}
		r.setMotion(false, time.Now())
		c.state.setPhase(r.segmenter.Phase().String(), "")
		if err := r.src.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close capture source")
		}
	}()

	maxErrors := c.cfg.Capture.MaxConsecutiveErrors
	consecutive := 0
	for {
		f, err := r.src.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, capture.ErrEndOfStream), errors.Is(err, capture.ErrDeviceLost):
				return fmt.Errorf("capture %s: %w", c.cfg.Device, err)
			}
			consecutive++
			c.state.captureErrors.Add(1)
			c.logger.Warn().Err(err).
				Str("event", "capture.error").
				Int("consecutive", consecutive).
				Msg("failed to read frame")
			if maxErrors > 0 && consecutive >= maxErrors {
				return fmt.Errorf("%w: %d consecutive errors: %w", ErrCaptureFailed, consecutive, err)
			}
			continue
		}
		consecutive = 0
		r.process(f)
	}
}

// process is one iteration: detect, step the segmenter, then remember the
// frame for pre-roll.
func (r *run) process(f frame.Frame) {
	c := r.c
	res := r.detector.Evaluate(f)
	if err := r.segmenter.Step(f, res); err != nil {
		c.state.setError(err)
	}
	r.preroll.Push(f)

	current := ""
	if seg := r.segmenter.Current(); seg != nil {
		current = seg.ID
	}
	c.state.setPhase(r.segmenter.Phase().String(), current)
	r.setMotion(res.Triggered, f.Timestamp)

	if c.cfg.PreviewRaw || c.cfg.PreviewProc {
		p := notify.Preview{}
		if c.cfg.PreviewRaw {
			p.Frame = f
		}
		if c.cfg.PreviewProc {
			mask := r.detector.Mask()
			p.Mask = &mask
		}
		c.preview.Store(&p)
		c.hub.Publish(p)
	}
	c.state.frame(f.Timestamp)
}

func (r *run) setMotion(active bool, at time.Time) {
	if r.motion == active {
		return
	}
	r.motion = active
	r.c.state.motion.Store(active)
	metrics.SetMotionActive(active)
	r.c.hub.Publish(notify.MotionChanged{Active: active, At: at})
}
