// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/motion"
)

// Topics.
const (
	TopicSegment     = "segment.completed"
	TopicCompression = "compression.completed"
	TopicMotion      = "motion.changed"
	TopicPreview     = "preview"
	TopicPipeline    = "pipeline.state"
)

// Event is anything published on the hub.
type Event interface {
	Topic() string
}

// SegmentCompleted is published when the segmenter finishes a segment,
// successfully (state closed) or not (state failed).
type SegmentCompleted struct {
	ID     string    `json:"id"`
	Path   string    `json:"path"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Frames int       `json:"frames"`
	State  string    `json:"state"`
	Err    string    `json:"error,omitempty"`
}

func (SegmentCompleted) Topic() string { return TopicSegment }

// CompressionCompleted is published when a compression job is terminal.
type CompressionCompleted struct {
	ID             string `json:"id"`
	OriginalPath   string `json:"original_path"`
	CompressedPath string `json:"compressed_path,omitempty"`
	Success        bool   `json:"success"`
	Attempts       int    `json:"attempts"`
	Err            string `json:"error,omitempty"`
}

func (CompressionCompleted) Topic() string { return TopicCompression }

// MotionChanged is published on every edge of the live motion indicator.
type MotionChanged struct {
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
}

func (MotionChanged) Topic() string { return TopicMotion }

// Preview carries the latest raw frame and, when enabled, the foreground
// mask. It is never serialized.
type Preview struct {
	Frame frame.Frame  `json:"-"`
	Mask  *motion.Mask `json:"-"`
}

func (Preview) Topic() string { return TopicPreview }

// PipelineStateChanged is published when a pipeline run starts or ends.
type PipelineStateChanged struct {
	Running bool      `json:"running"`
	State   string    `json:"state"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

func (PipelineStateChanged) Topic() string { return TopicPipeline }

// ErrString renders err for an event field.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
