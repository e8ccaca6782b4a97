// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/smartcam/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds the current configuration with atomic reloading capability.
// Reloads come from the file watcher or an explicit Reload call (SIGHUP).
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewHolder creates a new configuration holder with initial config.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads and validates configuration. On failure the previous
// configuration is kept and the error is returned.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	h.notifyListeners(newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded; applies on next pipeline start")
	return nil
}

// StartWatcher watches the config file for changes until ctx is done.
// Without a config file this is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors commonly replace the file via rename,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, filepath.Clean(path))
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str("event", "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str("event", "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// Sends are non-blocking; a full channel misses the notification.
// The caller is responsible for closing the channel.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(newCfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, newCfg Config) {
	changed := func(key string, before, after any) {
		h.logger.Info().
			Str("event", "config.changed").
			Str("key", key).
			Interface("old", before).
			Interface("new", after).
			Msg("config changed")
	}
	if old.Device != newCfg.Device {
		changed("device", old.Device, newCfg.Device)
	}
	if old.FPS != newCfg.FPS {
		changed("fps", old.FPS, newCfg.FPS)
	}
	if old.Area != newCfg.Area {
		changed("area", old.Area, newCfg.Area)
	}
	if old.Hits != newCfg.Hits {
		changed("hits", old.Hits, newCfg.Hits)
	}
	if old.PreSeconds != newCfg.PreSeconds {
		changed("pre_s", old.PreSeconds, newCfg.PreSeconds)
	}
	if old.PostSeconds != newCfg.PostSeconds {
		changed("post_s", old.PostSeconds, newCfg.PostSeconds)
	}
	if old.OutDir != newCfg.OutDir {
		changed("out_dir", old.OutDir, newCfg.OutDir)
	}
	if old.Prefix != newCfg.Prefix {
		changed("prefix", old.Prefix, newCfg.Prefix)
	}
	if old.CompressAfterMin != newCfg.CompressAfterMin {
		changed("compress_after_min", old.CompressAfterMin, newCfg.CompressAfterMin)
	}
}
