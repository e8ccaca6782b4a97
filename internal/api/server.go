// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the read-only HTTP status surface: pipeline status,
// the compression queue, catalogued segments, live previews and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/smartcam/internal/api/middleware"
	"github.com/ManuGH/smartcam/internal/catalog"
	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/pipeline"
)

// Pipeline is the view of a running pipeline the API reads from.
type Pipeline interface {
	Status() pipeline.Status
	Jobs() []compress.Job
	LatestPreview() (notify.Preview, bool)
}

// Segments lists catalogued segments.
type Segments interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Record, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int
	// TracingService names the OTel HTTP spans. Empty disables tracing.
	TracingService string
	// JPEGQuality of preview images. Defaults to 80.
	JPEGQuality int
}

// Deps are the data sources of the API.
type Deps struct {
	// Pipeline returns the current run, or nil between runs. The daemon
	// replaces the run on restart, so it is looked up per request.
	Pipeline func() Pipeline
	// Segments is optional; without it /api/v1/segments answers 503.
	Segments Segments
	Version  string
}

// Server holds the routes of the status API.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	if deps.Pipeline == nil {
		deps.Pipeline = func() Pipeline { return nil }
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimit:             s.cfg.RateLimit,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/jobs", s.handleJobs)
		r.Get("/segments", s.handleSegments)
		r.Get("/preview/raw.jpg", s.handlePreviewRaw)
		r.Get("/preview/mask.jpg", s.handlePreviewMask)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}
