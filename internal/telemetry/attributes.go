// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across smartcam.
const (
	// Segment attributes
	SegmentIDKey     = "segment.id"
	SegmentPathKey   = "segment.path"
	SegmentFramesKey = "segment.frames"

	// Transcoding attributes
	TranscodeAttemptKey = "transcode.attempt"
	TranscodeRunIDKey   = "transcode.run_id"
	TranscodeOutputKey  = "transcode.output"
	TranscodeCRFKey     = "transcode.crf"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SegmentAttributes creates segment-related span attributes.
func SegmentAttributes(id, path string, frames int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SegmentIDKey, id))
	}
	if path != "" {
		attrs = append(attrs, attribute.String(SegmentPathKey, path))
	}
	if frames > 0 {
		attrs = append(attrs, attribute.Int(SegmentFramesKey, frames))
	}
	return attrs
}

// TranscodeAttributes creates transcoding-related span attributes.
func TranscodeAttributes(runID, output string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeRunIDKey, runID),
		attribute.String(TranscodeOutputKey, output),
		attribute.Int(TranscodeAttemptKey, attempt),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
