// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	segmenterState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcam_segmenter_state",
		Help: "Current segmenter state (active state=1, others 0)",
	}, []string{"state"})

	motionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartcam_motion_active",
		Help: "Live motion indicator (1 while a debounced motion event is in progress)",
	})

	motionFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartcam_motion_frames_total",
		Help: "Total number of frames whose foreground area exceeded the threshold",
	})

	motionTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartcam_motion_triggers_total",
		Help: "Total number of debounced motion triggers that opened a segment",
	})

	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_segments_total",
		Help: "Total number of finished segments by result",
	}, []string{"result"})

	segmentFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartcam_segment_frames",
		Help:    "Number of frames per closed segment",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	})

	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_pipeline_runs_total",
		Help: "Total number of pipeline runs by exit reason",
	}, []string{"reason"})
)

var segmenterStates = []string{"idle", "recording", "post_roll"}

// SetSegmenterState records the active segmenter state.
func SetSegmenterState(state string) {
	for _, s := range segmenterStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		segmenterState.WithLabelValues(s).Set(value)
	}
}

// SetMotionActive toggles the live motion gauge.
func SetMotionActive(active bool) {
	if active {
		motionActive.Set(1)
		return
	}
	motionActive.Set(0)
}

// IncMotionFrame records a frame classified as motion.
func IncMotionFrame() {
	motionFrames.Inc()
}

// IncMotionTrigger records a debounced trigger.
func IncMotionTrigger() {
	motionTriggers.Inc()
}

// RecordSegment records a finished segment. result ∈ {closed,failed}.
func RecordSegment(result string, frames int) {
	switch result {
	case "closed", "failed":
	default:
		result = "unknown"
	}
	segmentsTotal.WithLabelValues(result).Inc()
	if result == "closed" {
		segmentFrames.Observe(float64(frames))
	}
}

// IncPipelineRun records why a pipeline run ended.
func IncPipelineRun(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	pipelineRuns.WithLabelValues(reason).Inc()
}
