// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	// DefaultGrace is how long ffmpeg gets to exit after SIGTERM.
	DefaultGrace = 5 * time.Second
	stderrLines  = 40
	tailLines    = 5
)

// process is one supervised ffmpeg invocation running in its own process group.
type process struct {
	cmd    *exec.Cmd
	stderr *LineRing
	grace  time.Duration
	logger zerolog.Logger

	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

// startProcess starts cmd after wiring stderr and the process group.
// The caller sets up stdin/stdout before calling.
func startProcess(cmd *exec.Cmd, grace time.Duration, logger zerolog.Logger) (*process, error) {
	if grace <= 0 {
		grace = DefaultGrace
	}
	p := &process{
		cmd:    cmd,
		stderr: NewLineRing(stderrLines),
		grace:  grace,
		logger: logger,
		exited: make(chan struct{}),
	}
	cmd.Stderr = p.stderr
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	logger.Debug().
		Str("event", "ffmpeg.started").
		Int(log.FieldPID, cmd.Process.Pid).
		Strs("args", cmd.Args[1:]).
		Msg("ffmpeg started")

	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// waitCh adapts the exit notification for procgroup.Terminate.
func (p *process) waitCh() <-chan error {
	ch := make(chan error, 1)
	go func() {
		<-p.exited
		ch <- p.exitErr
	}()
	return ch
}

// Exited reports whether the process has already exited.
func (p *process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// waitTimeout blocks until exit or timeout. exited is false on timeout.
func (p *process) waitTimeout(timeout time.Duration) (exited bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.exited:
		return true, p.exitErr
	case <-timer.C:
		return false, nil
	}
}

// stop terminates the process group (SIGTERM, grace, SIGKILL). Idempotent.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		if p.Exited() {
			p.stopErr = p.exitErr
			return
		}
		p.stopErr = procgroup.Terminate(p.cmd, p.waitCh(), p.grace)
	})
	return p.stopErr
}

// describe formats an exit error with the stderr tail.
func (p *process) describe(err error) string {
	tail := p.stderr.Tail(tailLines)
	if tail == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v (stderr: %s)", err, tail)
}
