// SPDX-License-Identifier: MIT

// Package daemon wires the smartcam runtime together and supervises it.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ManuGH/smartcam/internal/api"
	"github.com/ManuGH/smartcam/internal/catalog"
	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/infra/ffmpeg"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/notify/redissink"
	"github.com/ManuGH/smartcam/internal/pipeline"
	"github.com/ManuGH/smartcam/internal/telemetry"
	"github.com/ManuGH/smartcam/internal/validate"
)

// CatalogFileName is the catalog database name used when catalog.path is empty.
const CatalogFileName = ".smartcam.db"

const (
	serviceName      = "smartcam"
	apiRateLimit     = 600
	preflightTimeout = 10 * time.Second
	processGrace     = 5 * time.Second
)

// Options configures Bootstrap.
type Options struct {
	// ConfigPath is the YAML/JSON config file. Empty runs on defaults and env.
	ConfigPath string
	Version    string
	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer
	// Supervisor overrides restart tuning.
	Supervisor SupervisorConfig
	// Factory overrides the ffmpeg-backed pipeline, for tests.
	Factory Factory
}

// Bootstrap loads the configuration and builds the runtime. On error every
// resource opened so far is released.
func Bootstrap(ctx context.Context, opts Options) (app *App, err error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	log.Configure(log.Config{Level: config.DefaultLogLevel, Output: out, Service: serviceName, Version: opts.Version})

	loader := config.NewLoader(opts.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, _ := validate.ParseLogLevel(cfg.Log.Level)
	log.Configure(log.Config{Level: string(level), Output: out, Service: serviceName, Version: opts.Version})
	logger := log.WithComponent("daemon")

	mgr := NewManager(ServerConfig{Listen: cfg.API.Listen}, nil)
	defer func() {
		if err != nil {
			_ = mgr.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: opts.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Str("event", "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
		tp = nil
	} else {
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}

	factory := opts.Factory
	if factory == nil {
		pctx, cancel := context.WithTimeout(ctx, preflightTimeout)
		version, verr := ffmpeg.Version(pctx, cfg.FFmpeg.Bin)
		cancel()
		if verr != nil {
			return nil, fmt.Errorf("ffmpeg preflight: %w", verr)
		}
		logger.Info().Str("event", "ffmpeg.found").Str("version", version).Msg("ffmpeg available")
	}

	hub := notify.NewHub(cfg.Notify.Buffer)
	mgr.RegisterShutdownHook("notify_hub", func(context.Context) error {
		hub.Close()
		return nil
	})

	store, err := catalog.Open(ctx, catalogPath(cfg))
	if err != nil {
		return nil, err
	}
	mgr.RegisterShutdownHook("catalog", func(context.Context) error { return store.Close() })

	var sink *redissink.Sink
	if cfg.Notify.Redis.Addr != "" {
		sink, err = redissink.Dial(ctx, redissink.Config{Addr: cfg.Notify.Redis.Addr, Channel: cfg.Notify.Redis.Channel})
		if err != nil {
			// Consumers of the redis feed are optional; recording is not.
			logger.Warn().Err(err).Str("event", "notify.redis_unavailable").Msg("redis sink disabled")
			sink, err = nil, nil
		} else {
			mgr.RegisterShutdownHook("redis_sink", func(context.Context) error { return sink.Close() })
		}
	}

	if factory == nil {
		factory = ffmpegFactory(hub, store)
	}
	sup, err := NewSupervisor(opts.Supervisor, config.NewHolder(cfg, loader), factory)
	if err != nil {
		return nil, err
	}

	if cfg.API.Listen != "" {
		tracing := ""
		if tp != nil && tp.Enabled() {
			tracing = serviceName
		}
		srv := api.New(api.Config{RateLimit: apiRateLimit, TracingService: tracing}, api.Deps{
			Pipeline: func() api.Pipeline {
				if r := sup.Current(); r != nil {
					return r
				}
				return nil
			},
			Segments: store,
			Version:  opts.Version,
		})
		mgr.handler = srv.Handler()
	}

	logger.Info().
		Str("event", "daemon.bootstrapped").
		Str("config", opts.ConfigPath).
		Str(log.FieldDevice, cfg.Device).
		Str(log.FieldPath, cfg.OutDir).
		Str("api", cfg.API.Listen).
		Bool("redis", sink != nil).
		Msg("daemon ready")

	return &App{
		logger:       logger,
		manager:      mgr,
		holder:       sup.holder,
		supervisor:   sup,
		hub:          hub,
		sink:         sink,
		reloadSignal: syscall.SIGHUP,
	}, nil
}

func catalogPath(cfg config.Config) string {
	if cfg.Catalog.Path != "" {
		return cfg.Catalog.Path
	}
	return filepath.Join(cfg.OutDir, CatalogFileName)
}

// ffmpegFactory builds pipeline runs backed by ffmpeg processes. The hub
// and catalog outlive individual runs.
func ffmpegFactory(hub *notify.Hub, store *catalog.Store) Factory {
	return func(snap config.Snapshot) (Runner, error) {
		enc := &ffmpeg.Encoder{Bin: snap.FFmpeg.Bin, Grace: processGrace}
		c, err := pipeline.New(snap, pipeline.Deps{
			Opener: &ffmpeg.Capture{
				Bin:         snap.FFmpeg.Bin,
				Width:       snap.Width,
				Height:      snap.Height,
				OpenTimeout: snap.Capture.OpenTimeout,
				Grace:       processGrace,
			},
			Writers: enc.NewWriter,
			Transcoder: &ffmpeg.Transcoder{
				Bin:    snap.FFmpeg.Bin,
				CRF:    snap.Compress.CRF,
				Preset: snap.Compress.Preset,
				Grace:  processGrace,
			},
			Hub:     hub,
			Catalog: store,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
