// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/smartcam/internal/capture"
	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/pipeline"
)

// Runner is one pipeline run. *pipeline.Coordinator implements it.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Wait() error
	Done() <-chan struct{}

	Status() pipeline.Status
	Jobs() []compress.Job
	LatestPreview() (notify.Preview, bool)
}

// Factory builds a run from a configuration snapshot.
type Factory func(cfg config.Snapshot) (Runner, error)

// SupervisorConfig tunes restarts.
type SupervisorConfig struct {
	// RestartBackoff is the first delay after a run ended on its own.
	// It doubles per consecutive restart up to RestartBackoffMax.
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration
	// StopTimeout bounds how long a run may take to close its segment and
	// cancel transcodes.
	StopTimeout time.Duration
}

const (
	defaultRestartBackoff    = time.Second
	defaultRestartBackoffMax = time.Minute
	defaultStopTimeout       = 30 * time.Second
)

// Supervisor keeps exactly one pipeline run alive. Configuration changes
// (file watcher or SIGHUP) stop the current run and start a new one from
// the fresh snapshot. A run that ends by itself (end of stream, repeated
// capture errors) is restarted with exponential backoff. A device or
// output directory that is unusable on the very first start is fatal.
type Supervisor struct {
	cfg     SupervisorConfig
	holder  *config.Holder
	factory Factory
	logger  zerolog.Logger

	running  atomic.Bool
	restarts chan struct{}
	// delays is only touched by the Run goroutine.
	delays *backoff.ExponentialBackOff

	mu      sync.RWMutex
	current Runner
}

// NewSupervisor validates its collaborators and applies defaults.
func NewSupervisor(cfg SupervisorConfig, holder *config.Holder, factory Factory) (*Supervisor, error) {
	if holder == nil {
		return nil, ErrMissingHolder
	}
	if factory == nil {
		return nil, ErrMissingFactory
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = defaultRestartBackoff
	}
	if cfg.RestartBackoffMax < cfg.RestartBackoff {
		cfg.RestartBackoffMax = max(defaultRestartBackoffMax, cfg.RestartBackoff)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Supervisor{
		cfg:      cfg,
		holder:   holder,
		factory:  factory,
		logger:   log.WithComponent("daemon"),
		restarts: make(chan struct{}, 1),
		delays:   newRestartBackOff(cfg),
	}, nil
}

func newRestartBackOff(cfg SupervisorConfig) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: cfg.RestartBackoff,
		Multiplier:      2,
		MaxInterval:     cfg.RestartBackoffMax,
	}
	b.Reset()
	return b
}

// Current returns the active run, or nil between runs.
func (s *Supervisor) Current() Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Restart asks Run to replace the current run. Requests coalesce.
func (s *Supervisor) Restart() {
	select {
	case s.restarts <- struct{}{}:
	default:
	}
}

// Run supervises runs until ctx is cancelled, then stops the current run
// gracefully. It returns nil on cancellation and the cause of a fatal
// start-up failure otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	reloads := make(chan config.Config, 1)
	s.holder.RegisterListener(reloads)

	first := true
	consecutive := 0
	for {
		r, err := s.start(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if first {
				return err
			}
			consecutive++
			if !s.sleep(ctx, s.delays.NextBackOff(), reloads) {
				return nil
			}
			continue
		}
		first = false
		startedAt := time.Now()

		select {
		case <-ctx.Done():
			s.stop(ctx, r, "shutdown")
			return nil

		case <-reloads:
			s.stop(ctx, r, "config_reload")
			consecutive = 0
			s.delays.Reset()

		case <-s.restarts:
			s.stop(ctx, r, "restart_requested")
			consecutive = 0
			s.delays.Reset()

		case <-r.Done():
			err := r.Wait()
			s.setCurrent(nil)
			if !restartable(err) {
				s.logger.Error().Err(err).Str("event", "daemon.run_fatal").Msg("pipeline run failed")
				return err
			}
			if time.Since(startedAt) > s.cfg.RestartBackoffMax {
				consecutive = 0
				s.delays.Reset()
			}
			consecutive++
			delay := s.delays.NextBackOff()
			s.logger.Warn().
				Err(err).
				Str("event", "daemon.run_restart").
				Int(log.FieldAttempt, consecutive).
				Dur("backoff", delay).
				Msg("pipeline run ended, restarting")
			if !s.sleep(ctx, delay, reloads) {
				return nil
			}
		}
	}
}

func (s *Supervisor) start(ctx context.Context) (Runner, error) {
	snap := s.holder.Get().Snapshot()
	r, err := s.factory(snap)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Str("event", "daemon.run_start_failed").
			Str(log.FieldDevice, snap.Device).
			Msg("pipeline failed to start")
		return nil, err
	}
	s.setCurrent(r)
	return r, nil
}

// stop stops r and returns once r has exited, so that two runs never share
// the device. Only the end of ctx (daemon shutdown) cuts the wait short.
func (s *Supervisor) stop(ctx context.Context, r Runner, reason string) {
	s.logger.Info().Str("event", "daemon.run_stop").Str("reason", reason).Msg("stopping pipeline run")
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	if err := r.Stop(sctx); err != nil {
		s.logger.Error().Err(err).Str("event", "daemon.run_stop_timeout").Msg("pipeline run did not stop in time, waiting for it to exit")
		select {
		case <-r.Done():
		case <-ctx.Done():
		}
	}
	s.setCurrent(nil)
}

// sleep waits d. A reload cuts the wait short. It reports false when ctx ended.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration, reloads <-chan config.Config) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-reloads:
		return true
	case <-s.restarts:
		return true
	case <-t.C:
		return true
	}
}

func (s *Supervisor) setCurrent(r Runner) {
	s.mu.Lock()
	s.current = r
	s.mu.Unlock()
}

// restartable reports whether a run that ended on its own should be
// replaced rather than taking the daemon down.
func restartable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, capture.ErrEndOfStream),
		errors.Is(err, pipeline.ErrCaptureFailed),
		errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, capture.ErrDeviceLost):
		return true
	default:
		return false
	}
}
