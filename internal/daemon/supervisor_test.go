// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

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

	"github.com/ManuGH/smartcam/internal/capture"
	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	snap     config.Snapshot
	startErr error
	// stopDelay makes the run exit that long after Stop, ignoring the
	// Stop deadline.
	stopDelay time.Duration

	once     sync.Once
	slowOnce sync.Once
	done     chan struct{}
	err      error
	stopped  atomic.Bool
}

func newFakeRunner(snap config.Snapshot) *fakeRunner {
	return &fakeRunner{snap: snap, done: make(chan struct{})}
}

func (r *fakeRunner) Start(context.Context) error { return r.startErr }

func (r *fakeRunner) Stop(ctx context.Context) error {
	if r.stopDelay <= 0 {
		r.exit()
		return nil
	}
	r.slowOnce.Do(func() { time.AfterFunc(r.stopDelay, r.exit) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRunner) exit() {
	r.once.Do(func() {
		r.stopped.Store(true)
		close(r.done)
	})
}

// end simulates the run ending on its own.
func (r *fakeRunner) end(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *fakeRunner) Wait() error           { <-r.done; return r.err }
func (r *fakeRunner) Done() <-chan struct{} { return r.done }
func (r *fakeRunner) Jobs() []compress.Job  { return nil }
func (r *fakeRunner) Status() pipeline.Status {
	select {
	case <-r.done:
		return pipeline.Status{}
	default:
		return pipeline.Status{Running: true}
	}
}
func (r *fakeRunner) LatestPreview() (notify.Preview, bool) { return notify.Preview{}, false }

// runnerLog hands out runners and remembers them in order.
type runnerLog struct {
	mu        sync.Mutex
	runners   []*fakeRunner
	startErr  func(n int) error
	stopDelay time.Duration
	// overlaps counts runners built while an earlier one was still alive.
	overlaps int
}

func (l *runnerLog) factory(snap config.Snapshot) (Runner, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, prev := range l.runners {
		select {
		case <-prev.done:
		default:
			if prev.startErr == nil {
				l.overlaps++
			}
		}
	}
	r := newFakeRunner(snap)
	r.stopDelay = l.stopDelay
	if l.startErr != nil {
		r.startErr = l.startErr(len(l.runners))
	}
	l.runners = append(l.runners, r)
	return r, nil
}

func (l *runnerLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runners)
}

func (l *runnerLog) get(i int) *fakeRunner {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runners[i]
}

func writeConfig(t *testing.T, path string, fps int) {
	t.Helper()
	body := fmt.Sprintf("fps: %d\nout_dir: %s\n", fps, filepath.Dir(path))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newHolder(t *testing.T, fps int) (*config.Holder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartcam.yaml")
	writeConfig(t, path, fps)
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	return config.NewHolder(cfg, loader), path
}

func fastSupervisor(t *testing.T, holder *config.Holder, f Factory) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		RestartBackoff:    time.Millisecond,
		RestartBackoffMax: 10 * time.Millisecond,
		StopTimeout:       time.Second,
	}, holder, f)
	require.NoError(t, err)
	return s
}

func runSupervisor(t *testing.T, s *Supervisor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return cancel, errCh
}

func TestNewSupervisor_Validation(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{}

	_, err := NewSupervisor(SupervisorConfig{}, nil, log.factory)
	assert.ErrorIs(t, err, ErrMissingHolder)
	_, err = NewSupervisor(SupervisorConfig{}, holder, nil)
	assert.ErrorIs(t, err, ErrMissingFactory)

	s, err := NewSupervisor(SupervisorConfig{}, holder, log.factory)
	require.NoError(t, err)
	assert.Equal(t, defaultRestartBackoff, s.cfg.RestartBackoff)
	assert.Equal(t, defaultRestartBackoffMax, s.cfg.RestartBackoffMax)
	assert.Equal(t, defaultStopTimeout, s.cfg.StopTimeout)
}

func TestSupervisor_FirstStartFailureIsFatal(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{startErr: func(int) error {
		return fmt.Errorf("%w: /dev/video9: no such device", capture.ErrDeviceUnavailable)
	}}
	s := fastSupervisor(t, holder, log.factory)

	err := s.Run(context.Background())
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Equal(t, 1, log.count())
	assert.Nil(t, s.Current())
}

func TestSupervisor_RestartsAfterEndOfStream(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 && s.Current() != nil }, time.Second, time.Millisecond)
	log.get(0).end(fmt.Errorf("capture: %w", capture.ErrEndOfStream))

	require.Eventually(t, func() bool { return log.count() == 2 && s.Current() != nil }, time.Second, time.Millisecond)
	assert.Same(t, log.get(1), s.Current())

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, log.get(1).stopped.Load(), "shutdown stops the current run")
	assert.Nil(t, s.Current())
}

func TestSupervisor_RestartFailuresAreRetried(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{startErr: func(n int) error {
		if n == 1 || n == 2 {
			return capture.ErrDeviceUnavailable
		}
		return nil
	}}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	log.get(0).end(pipeline.ErrCaptureFailed)

	require.Eventually(t, func() bool { return log.count() == 4 && s.Current() != nil }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

func TestSupervisor_FatalRunError(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	boom := errors.New("boom")
	log.get(0).end(boom)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop on a fatal run error")
	}
	assert.Equal(t, 1, log.count())
}

func TestSupervisor_ReloadRestartsWithNewSnapshot(t *testing.T) {
	holder, path := newHolder(t, 10)
	log := &runnerLog{}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 10, log.get(0).snap.FPS)

	writeConfig(t, path, 15)
	require.NoError(t, holder.Reload(context.Background()))

	require.Eventually(t, func() bool { return log.count() == 2 }, time.Second, time.Millisecond)
	assert.True(t, log.get(0).stopped.Load())
	assert.Equal(t, 15, log.get(1).snap.FPS)

	cancel()
	require.NoError(t, <-errCh)
}

func TestSupervisor_RestartRequest(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	s.Restart()
	require.Eventually(t, func() bool { return log.count() == 2 }, time.Second, time.Millisecond)
	assert.True(t, log.get(0).stopped.Load())

	cancel()
	require.NoError(t, <-errCh)
}

func TestSupervisor_RunTwice(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{}
	s := fastSupervisor(t, holder, log.factory)
	cancel, errCh := runSupervisor(t, s)

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-errCh)
}

func TestSupervisor_Backoff(t *testing.T) {
	b := newRestartBackOff(SupervisorConfig{RestartBackoff: time.Second, RestartBackoffMax: 5 * time.Second})

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.NextBackOff())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}
	assert.Equal(t, want, got)

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff(), "reset starts over")
}

func TestSupervisor_SlowStopDoesNotOverlapRuns(t *testing.T) {
	holder, _ := newHolder(t, 10)
	log := &runnerLog{stopDelay: 150 * time.Millisecond}
	s, err := NewSupervisor(SupervisorConfig{
		RestartBackoff:    time.Millisecond,
		RestartBackoffMax: 10 * time.Millisecond,
		StopTimeout:       10 * time.Millisecond,
	}, holder, log.factory)
	require.NoError(t, err)
	cancel, errCh := runSupervisor(t, s)
	defer cancel()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, time.Millisecond)
	requested := time.Now()
	s.Restart()

	require.Eventually(t, func() bool { return log.count() == 2 }, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(requested), 150*time.Millisecond, "second run waits for the first to exit")
	assert.True(t, log.get(0).stopped.Load())

	cancel()
	require.NoError(t, <-errCh)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Zero(t, log.overlaps)
}

func TestRestartable(t *testing.T) {
	assert.True(t, restartable(nil))
	assert.True(t, restartable(fmt.Errorf("x: %w", capture.ErrEndOfStream)))
	assert.True(t, restartable(fmt.Errorf("%w: 25 consecutive errors", pipeline.ErrCaptureFailed)))
	assert.True(t, restartable(fmt.Errorf("capture /dev/video0: %w", capture.ErrDeviceLost)))
	assert.False(t, restartable(errors.New("boom")))
}
