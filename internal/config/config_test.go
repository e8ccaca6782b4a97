// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"odd width", func(c *Config) { c.Width = 641 }, "width"},
		{"negative area", func(c *Config) { c.Area = -1 }, "area"},
		{"negative pre roll", func(c *Config) { c.PreSeconds = -1 }, "pre_s"},
		{"learning rate zero", func(c *Config) { c.Detect.LearningRate = 0 }, "detect.learning_rate"},
		{"backoff max below base", func(c *Config) { c.Compress.RetryBackoffMax = time.Second }, "compress.retry_backoff_max"},
		{"unknown preset", func(c *Config) { c.Compress.Preset = "turbo" }, "compress.preset"},
		{"bad redis addr", func(c *Config) { c.Notify.Redis.Addr = "redis" }, "notify.redis.addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"telemetry exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"empty ffmpeg", func(c *Config) { c.FFmpeg.Bin = "" }, "ffmpeg.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ZeroPreAndPostRollAllowed(t *testing.T) {
	cfg := Default()
	cfg.PreSeconds = 0
	cfg.PostSeconds = 0
	assert.NoError(t, Validate(cfg))
}

func TestSnapshot_DeepCopyAndDurations(t *testing.T) {
	cfg := Default()
	cfg.FPS = 10
	cfg.PreSeconds = 2
	cfg.PostSeconds = 1.5
	cfg.CompressAfterMin = 0.5
	cfg.Mail = map[string]any{"to": "a@example.com", "nested": map[string]any{"k": "v"}}

	snap := cfg.Snapshot()
	cfg.Mail["to"] = "b@example.com"
	cfg.Mail["nested"].(map[string]any)["k"] = "changed"
	cfg.FPS = 30

	assert.Equal(t, 10, snap.FPS)
	assert.Equal(t, "a@example.com", snap.Mail["to"])
	assert.Equal(t, "v", snap.Mail["nested"].(map[string]any)["k"])
	assert.Equal(t, 2.0, snap.PreSeconds)
	assert.Equal(t, 1500*time.Millisecond, snap.PostRoll)
	assert.Equal(t, 30*time.Second, snap.CompressAfter)
	assert.Equal(t, time.Duration(0), snap.MaxSegment)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	for _, name := range []string{"smartcam.yaml", "smartcam_config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "etc", name)
			require.NoError(t, WriteDefault(path, false))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			cfg, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := writeFile(t, "config.yaml", "fps: 5\n")

	err := WriteDefault(path, false)
	assert.ErrorIs(t, err, ErrConfigExists)

	require.NoError(t, WriteDefault(path, true))
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFPS, cfg.FPS)
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	path := writeFile(t, "config.yaml", "fps: 10\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("fps: 12\n"), 0600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, 12, h.Get().FPS)
	select {
	case got := <-ch:
		assert.Equal(t, 12, got.FPS)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_ReloadFailureKeepsPrevious(t *testing.T) {
	path := writeFile(t, "config.yaml", "fps: 10\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	require.NoError(t, os.WriteFile(path, []byte("fps: 10\nbogus: 1\n"), 0600))

	err = h.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
	assert.Equal(t, 10, h.Get().FPS)
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "config.yaml", "fps: 10\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("fps: 14\n"), 0600))

	select {
	case got := <-ch:
		assert.Equal(t, 14, got.FPS)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload config")
	}
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(Default(), NewLoader(""))
	assert.NoError(t, h.StartWatcher(context.Background()))
}
