// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartcam_capture_frames_total",
		Help: "Total number of frames delivered by the frame source",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_capture_frames_dropped_total",
		Help: "Total number of frames dropped by the frame source",
	}, []string{"reason"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_capture_errors_total",
		Help: "Total number of capture errors by kind",
	}, []string{"kind"})

	deviceOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_capture_device_open_total",
		Help: "Total number of device open attempts by result",
	}, []string{"result"})
)

// IncFramesCaptured records a frame handed to the pipeline.
func IncFramesCaptured() {
	framesCaptured.Inc()
}

// IncFramesDropped records a dropped frame. reason ∈ {cadence,backpressure}.
func IncFramesDropped(reason string) {
	switch reason {
	case "cadence", "backpressure":
	default:
		reason = "unknown"
	}
	framesDropped.WithLabelValues(reason).Inc()
}

// IncCaptureError records a capture error. kind ∈ {transient,end_of_stream,fatal}.
func IncCaptureError(kind string) {
	switch kind {
	case "transient", "end_of_stream", "fatal":
	default:
		kind = "unknown"
	}
	captureErrors.WithLabelValues(kind).Inc()
}

// IncDeviceOpen records the outcome of a device open.
func IncDeviceOpen(result string) {
	deviceOpens.WithLabelValues(result).Inc()
}
