// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values. The capture, detection and naming defaults match the
// values SmartCam has always shipped with.
const (
	DefaultDevice           = "/dev/video0"
	DefaultFPS              = 20
	DefaultWidth            = 640
	DefaultHeight           = 480
	DefaultArea             = 1500
	DefaultHits             = 5
	DefaultPreSeconds       = 3
	DefaultPostSeconds      = 3
	DefaultPrefix           = "segment_"
	DefaultCompressAfterMin = 30
	DefaultFFmpegBin        = "ffmpeg"

	DefaultOpenTimeout          = 10 * time.Second
	DefaultMaxConsecutiveErrors = 25

	DefaultDetectScale        = 4
	DefaultDetectThreshold    = 25
	DefaultDetectLearningRate = 0.05

	DefaultCompressWorkers    = 1
	DefaultTickInterval       = 30 * time.Second
	DefaultMaxAttempts        = 3
	DefaultRetryBackoff       = 30 * time.Second
	DefaultRetryBackoffMax    = 10 * time.Minute
	DefaultCRF                = 23
	DefaultPreset             = "medium"
	DefaultNotifyBuffer       = 64
	DefaultRedisChannel       = "smartcam:events"
	DefaultLogLevel           = "info"
	DefaultTelemetryExporter  = "grpc"
	DefaultTelemetryEndpoint  = "localhost:4317"
	DefaultTelemetrySampling  = 1.0
)

// Default returns a configuration populated with defaults only.
func Default() Config {
	return Config{
		Device:           DefaultDevice,
		FPS:              DefaultFPS,
		Width:            DefaultWidth,
		Height:           DefaultHeight,
		Area:             DefaultArea,
		Hits:             DefaultHits,
		PreSeconds:       DefaultPreSeconds,
		PostSeconds:      DefaultPostSeconds,
		OutDir:           defaultOutDir(),
		Prefix:           DefaultPrefix,
		CompressAfterMin: DefaultCompressAfterMin,
		PreviewRaw:       true,
		PreviewProc:      true,
		FFmpeg:           FFmpegConfig{Bin: DefaultFFmpegBin},
		Capture: CaptureConfig{
			OpenTimeout:          DefaultOpenTimeout,
			MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		},
		Detect: DetectConfig{
			Scale:        DefaultDetectScale,
			Threshold:    DefaultDetectThreshold,
			LearningRate: DefaultDetectLearningRate,
		},
		Compress: CompressConfig{
			Workers:         DefaultCompressWorkers,
			TickInterval:    DefaultTickInterval,
			MaxAttempts:     DefaultMaxAttempts,
			RetryBackoff:    DefaultRetryBackoff,
			RetryBackoffMax: DefaultRetryBackoffMax,
			CRF:             DefaultCRF,
			Preset:          DefaultPreset,
		},
		Notify: NotifyConfig{
			Buffer: DefaultNotifyBuffer,
			Redis:  RedisConfig{Channel: DefaultRedisChannel},
		},
		Log: LogConfig{Level: DefaultLogLevel},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultTelemetryExporter,
			Endpoint:     DefaultTelemetryEndpoint,
			SamplingRate: DefaultTelemetrySampling,
		},
	}
}

func defaultOutDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "Videos"
	}
	return filepath.Join(home, "Videos")
}
