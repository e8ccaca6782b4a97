// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	runIDKey     ctxKey = "run_id"
	segmentIDKey ctxKey = "segment_id"
	jobIDKey     ctxKey = "job_id"
	requestIDKey ctxKey = "request_id"
)

func withValue(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextWithRunID stores the pipeline run ID in the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey, id)
}

// ContextWithSegmentID stores the segment ID in the context.
func ContextWithSegmentID(ctx context.Context, id string) context.Context {
	return withValue(ctx, segmentIDKey, id)
}

// ContextWithJobID stores the provided job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, jobIDKey, id)
}

// ContextWithRequestID stores the HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// RunIDFromContext extracts the run ID from context if present.
func RunIDFromContext(ctx context.Context) string { return stringValue(ctx, runIDKey) }

// SegmentIDFromContext extracts the segment ID from context if present.
func SegmentIDFromContext(ctx context.Context) string { return stringValue(ctx, segmentIDKey) }

// JobIDFromContext extracts the job ID from context if present.
func JobIDFromContext(ctx context.Context) string { return stringValue(ctx, jobIDKey) }

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if id := RunIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldRunID, id)
		added = true
	}
	if id := SegmentIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldSegmentID, id)
		added = true
	}
	if id := JobIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldJobID, id)
		added = true
	}
	if id := RequestIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldRequestID, id)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
