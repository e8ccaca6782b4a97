// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Config is the fully resolved smartcam configuration.
//
// The top-level keys keep the names of the original SmartCam JSON file so
// existing files load unchanged.
type Config struct {
	Device string `yaml:"device"`
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	Area int `yaml:"area"`
	Hits int `yaml:"hits"`

	PreSeconds        float64 `yaml:"pre_s"`
	PostSeconds       float64 `yaml:"post_s"`
	MaxSegmentSeconds float64 `yaml:"max_segment_s"`

	OutDir           string  `yaml:"out_dir"`
	Prefix           string  `yaml:"prefix"`
	CompressAfterMin float64 `yaml:"compress_after_min"`

	PreviewRaw  bool `yaml:"preview_raw"`
	PreviewProc bool `yaml:"preview_proc"`

	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Capture   CaptureConfig   `yaml:"capture"`
	Detect    DetectConfig    `yaml:"detect"`
	Compress  CompressConfig  `yaml:"compress"`
	Notify    NotifyConfig    `yaml:"notify"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Keys consumed only by external collaborators (mailer, RTSP relay).
	// They are preserved as-is and never interpreted here.
	Mail     map[string]any `yaml:"mail,omitempty"`
	SendMode string         `yaml:"send_mode,omitempty"`
	RTSP     map[string]any `yaml:"rtsp,omitempty"`
}

// FFmpegConfig locates the ffmpeg binary used for capture, encoding and transcoding.
type FFmpegConfig struct {
	Bin string `yaml:"bin"`
}

// CaptureConfig tunes the frame source.
type CaptureConfig struct {
	OpenTimeout          time.Duration `yaml:"open_timeout"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

// DetectConfig tunes the running-average background model.
type DetectConfig struct {
	Scale        int     `yaml:"scale"`
	Threshold    int     `yaml:"threshold"`
	LearningRate float64 `yaml:"learning_rate"`
}

// CompressConfig tunes the delayed compression scheduler.
type CompressConfig struct {
	Workers         int           `yaml:"workers"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	CRF             int           `yaml:"crf"`
	Preset          string        `yaml:"preset"`
}

// NotifyConfig configures the notification hub and its optional sinks.
type NotifyConfig struct {
	Buffer int         `yaml:"buffer"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig enables the redis event sink when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// CatalogConfig locates the segment catalog database. Empty places it at
// {out_dir}/.smartcam.db.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// APIConfig configures the HTTP status surface. Empty Listen disables it.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}
