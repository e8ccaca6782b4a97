// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace for waitCh,
// then SIGKILL and wait again. waitCh must deliver the result of cmd.Wait();
// Terminate consumes it and returns that error.
// It is safe to call on nil or never-started commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.IncProcTerminate("SIGTERM", outcome(Signal(cmd, syscall.SIGTERM)))

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
	}

	log.L().Warn().
		Int(log.FieldPID, cmd.Process.Pid).
		Dur("grace", grace).
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	metrics.IncProcTerminate("SIGKILL", outcome(Signal(cmd, syscall.SIGKILL)))

	// Always drain waitCh; SIGKILL frees a blocked process.
	err := <-waitCh
	if err == nil {
		metrics.IncProcWait("forced_exit0")
	} else {
		metrics.IncProcWait("forced_error")
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "sent"
	}
	return "error"
}
