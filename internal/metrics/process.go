// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_proc_terminate_total",
		Help: "Signals sent to child process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_proc_wait_total",
		Help: "Child process exits observed during termination by outcome",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal sent to a child process group.
func IncProcTerminate(signal, outcome string) {
	procTerminate.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a terminated child process exited.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}
