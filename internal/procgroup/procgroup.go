// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

// Package procgroup supervises child processes (ffmpeg capture, encoder and
// transcoder) as process groups so that a stop reaps every descendant.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// ErrNotStarted is returned when signalling a command that never started.
var ErrNotStarted = errors.New("process not started")

// Set configures the command to start in a new process group.
// Mandatory for Signal and Terminate to reach the whole tree.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Signal sends sig to the process group of cmd.
// A process that already exited is not an error.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}

	// Negative PGID targets the leader and all children (Setpgid makes PGID == PID).
	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}
