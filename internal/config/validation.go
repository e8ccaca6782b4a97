// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/smartcam/internal/validate"
)

const (
	maxSeconds  = 24 * 60 * 60
	minDuration = 10 * time.Millisecond
)

var (
	validPresets   = []string{"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow"}
	validExporters = []string{"grpc", "http"}
)

// Validate checks cfg and returns every problem found, wrapped in ErrInvalidConfig.
// The output directory is only checked for emptiness here; creation and
// writability are verified when a pipeline starts.
func Validate(cfg Config) error {
	v := validate.New()

	v.NotEmpty("device", cfg.Device)
	v.Range("fps", cfg.FPS, 1, 120)
	v.Range("width", cfg.Width, 16, 7680)
	v.Range("height", cfg.Height, 16, 4320)
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		v.AddError("width", "width and height must be even", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}
	v.NonNegative("area", cfg.Area)
	v.Positive("hits", cfg.Hits)
	v.FloatRange("pre_s", cfg.PreSeconds, 0, maxSeconds)
	v.FloatRange("post_s", cfg.PostSeconds, 0, maxSeconds)
	v.FloatRange("max_segment_s", cfg.MaxSegmentSeconds, 0, maxSeconds)
	v.NotEmpty("out_dir", cfg.OutDir)
	v.FileNamePart("prefix", cfg.Prefix)
	v.FloatRange("compress_after_min", cfg.CompressAfterMin, 0, 7*24*60)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)

	v.MinDuration("capture.open_timeout", cfg.Capture.OpenTimeout, minDuration)
	v.Positive("capture.max_consecutive_errors", cfg.Capture.MaxConsecutiveErrors)

	v.Range("detect.scale", cfg.Detect.Scale, 1, 16)
	v.Range("detect.threshold", cfg.Detect.Threshold, 1, 255)
	if cfg.Detect.LearningRate <= 0 || cfg.Detect.LearningRate > 1 {
		v.AddError("detect.learning_rate", fmt.Sprintf("value must be in (0, 1], got %g", cfg.Detect.LearningRate), cfg.Detect.LearningRate)
	}

	v.Range("compress.workers", cfg.Compress.Workers, 1, 16)
	v.MinDuration("compress.tick_interval", cfg.Compress.TickInterval, minDuration)
	v.Positive("compress.max_attempts", cfg.Compress.MaxAttempts)
	v.MinDuration("compress.retry_backoff", cfg.Compress.RetryBackoff, 0)
	if cfg.Compress.RetryBackoffMax < cfg.Compress.RetryBackoff {
		v.AddError("compress.retry_backoff_max",
			fmt.Sprintf("must be >= compress.retry_backoff (%s)", cfg.Compress.RetryBackoff),
			cfg.Compress.RetryBackoffMax)
	}
	v.Range("compress.crf", cfg.Compress.CRF, 0, 51)
	v.OneOf("compress.preset", cfg.Compress.Preset, validPresets)

	v.Positive("notify.buffer", cfg.Notify.Buffer)
	if cfg.Notify.Redis.Addr != "" {
		v.HostPort("notify.redis.addr", cfg.Notify.Redis.Addr)
		v.NotEmpty("notify.redis.channel", cfg.Notify.Redis.Channel)
	}

	if cfg.API.Listen != "" {
		v.ListenAddr("api.listen", cfg.API.Listen)
	}

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", "must be one of trace, debug, info, warn, error", cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, validExporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
