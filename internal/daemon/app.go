// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/notify/redissink"
)

// App owns the long-lived runtime: config watcher and reload signal, the
// pipeline supervisor, the event sink and the HTTP server.
type App struct {
	logger       zerolog.Logger
	manager      *Manager
	holder       *config.Holder
	supervisor   *Supervisor
	hub          *notify.Hub
	sink         *redissink.Sink
	reloadSignal os.Signal
}

// Supervisor returns the pipeline supervisor.
func (a *App) Supervisor() *Supervisor { return a.supervisor }

// Manager returns the server and shutdown manager.
func (a *App) Manager() *Manager { return a.manager }

// Run blocks until ctx is cancelled or a fatal error occurs, then runs the
// shutdown hooks.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// The watcher is best-effort; SIGHUP still works without it.
	if err := a.holder.StartWatcher(gctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	if a.reloadSignal != nil {
		g.Go(func() error {
			a.watchReloadSignal(gctx)
			return nil
		})
	}

	if a.sink != nil {
		sub := a.hub.Subscribe(notify.TopicSegment, notify.TopicCompression, notify.TopicMotion, notify.TopicPipeline)
		g.Go(func() error {
			defer sub.Close()
			return a.sink.Run(gctx, sub)
		})
	}

	g.Go(func() error { return a.supervisor.Run(gctx) })
	g.Go(func() error { return a.manager.Serve(gctx) })

	err := g.Wait()
	if shutdownErr := a.manager.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	return err
}

func (a *App) watchReloadSignal(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, a.reloadSignal)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			a.logger.Info().
				Str("event", "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			// A successful reload notifies the supervisor, which restarts
			// the pipeline. A failed one keeps the current run.
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
