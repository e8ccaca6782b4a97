// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/smartcam/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// ServerConfig configures the HTTP listener. Empty Listen disables it.
type ServerConfig struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Manager owns the HTTP server and the shutdown hooks.
type Manager struct {
	cfg     ServerConfig
	handler http.Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	addr     net.Addr
	hooks    []namedHook
	started  bool
	stopping bool
	ready    chan struct{}
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a manager serving handler on cfg.Listen.
func NewManager(cfg ServerConfig, handler http.Handler) *Manager {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithComponent("manager"),
		ready:   make(chan struct{}),
	}
}

// Serve runs the HTTP server until ctx is cancelled. Without a listen
// address or handler it just waits for ctx.
func (m *Manager) Serve(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if m.cfg.Listen == "" || m.handler == nil {
		close(m.ready)
		m.logger.Info().Str("event", "api.disabled").Msg("HTTP API disabled")
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", m.cfg.Listen)
	if err != nil {
		close(m.ready)
		return fmt.Errorf("listen %s: %w", m.cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}
	m.mu.Lock()
	m.server = srv
	m.addr = ln.Addr()
	m.mu.Unlock()
	close(m.ready)

	m.logger.Info().Str("event", "api.listening").Str("addr", ln.Addr().String()).Msg("API server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("API server failed")
			errCh <- fmt.Errorf("API server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown: %w", err)
		}
		return nil
	}
}

// Addr returns the bound address once Serve is listening, or nil.
func (m *Manager) Addr() net.Addr {
	<-m.ready
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

// Shutdown runs the shutdown hooks in reverse registration order and joins
// their errors. Calling it again is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}
