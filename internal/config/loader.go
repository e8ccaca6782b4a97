// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty path loads
// defaults and environment overrides only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path the loader reads.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.OutDir); err == nil {
		cfg.OutDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML or JSON file over cfg with STRICT parsing.
// Keys absent from the file keep their current (default) values.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("%w: %q (use .yaml, .yml or .json)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

// decodeStrict decodes a single YAML (or JSON) document into cfg, rejecting
// unknown fields and trailing documents.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies SMARTCAM_* overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *Config) {
	cfg.Device = l.envString(EnvPrefix+"DEVICE", cfg.Device)
	cfg.FPS = l.envInt(EnvPrefix+"FPS", cfg.FPS)
	cfg.Width = l.envInt(EnvPrefix+"WIDTH", cfg.Width)
	cfg.Height = l.envInt(EnvPrefix+"HEIGHT", cfg.Height)
	cfg.Area = l.envInt(EnvPrefix+"AREA", cfg.Area)
	cfg.Hits = l.envInt(EnvPrefix+"HITS", cfg.Hits)
	cfg.PreSeconds = l.envFloat(EnvPrefix+"PRE_S", cfg.PreSeconds)
	cfg.PostSeconds = l.envFloat(EnvPrefix+"POST_S", cfg.PostSeconds)
	cfg.MaxSegmentSeconds = l.envFloat(EnvPrefix+"MAX_SEGMENT_S", cfg.MaxSegmentSeconds)
	cfg.OutDir = l.envString(EnvPrefix+"OUT_DIR", cfg.OutDir)
	cfg.Prefix = l.envString(EnvPrefix+"PREFIX", cfg.Prefix)
	cfg.CompressAfterMin = l.envFloat(EnvPrefix+"COMPRESS_AFTER_MIN", cfg.CompressAfterMin)
	cfg.PreviewRaw = l.envBool(EnvPrefix+"PREVIEW_RAW", cfg.PreviewRaw)
	cfg.PreviewProc = l.envBool(EnvPrefix+"PREVIEW_PROC", cfg.PreviewProc)

	cfg.FFmpeg.Bin = l.envString(EnvPrefix+"FFMPEG_BIN", cfg.FFmpeg.Bin)

	cfg.Capture.OpenTimeout = l.envDuration(EnvPrefix+"CAPTURE_OPEN_TIMEOUT", cfg.Capture.OpenTimeout)
	cfg.Capture.MaxConsecutiveErrors = l.envInt(EnvPrefix+"CAPTURE_MAX_CONSECUTIVE_ERRORS", cfg.Capture.MaxConsecutiveErrors)

	cfg.Detect.Scale = l.envInt(EnvPrefix+"DETECT_SCALE", cfg.Detect.Scale)
	cfg.Detect.Threshold = l.envInt(EnvPrefix+"DETECT_THRESHOLD", cfg.Detect.Threshold)
	cfg.Detect.LearningRate = l.envFloat(EnvPrefix+"DETECT_LEARNING_RATE", cfg.Detect.LearningRate)

	cfg.Compress.Workers = l.envInt(EnvPrefix+"COMPRESS_WORKERS", cfg.Compress.Workers)
	cfg.Compress.TickInterval = l.envDuration(EnvPrefix+"COMPRESS_TICK_INTERVAL", cfg.Compress.TickInterval)
	cfg.Compress.MaxAttempts = l.envInt(EnvPrefix+"COMPRESS_MAX_ATTEMPTS", cfg.Compress.MaxAttempts)
	cfg.Compress.RetryBackoff = l.envDuration(EnvPrefix+"COMPRESS_RETRY_BACKOFF", cfg.Compress.RetryBackoff)
	cfg.Compress.RetryBackoffMax = l.envDuration(EnvPrefix+"COMPRESS_RETRY_BACKOFF_MAX", cfg.Compress.RetryBackoffMax)
	cfg.Compress.CRF = l.envInt(EnvPrefix+"COMPRESS_CRF", cfg.Compress.CRF)
	cfg.Compress.Preset = l.envString(EnvPrefix+"COMPRESS_PRESET", cfg.Compress.Preset)

	cfg.Notify.Buffer = l.envInt(EnvPrefix+"NOTIFY_BUFFER", cfg.Notify.Buffer)
	cfg.Notify.Redis.Addr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Notify.Redis.Addr)
	cfg.Notify.Redis.Channel = l.envString(EnvPrefix+"REDIS_CHANNEL", cfg.Notify.Redis.Channel)

	cfg.Catalog.Path = l.envString(EnvPrefix+"CATALOG_PATH", cfg.Catalog.Path)
	cfg.API.Listen = l.envString(EnvPrefix+"API_LISTEN", cfg.API.Listen)
	cfg.Log.Level = l.envString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
