// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package motion decides, frame by frame, whether the scene is moving.
//
// The Detector owns the area threshold and the consecutive-hits debounce.
// How foreground pixels are found is delegated to a BackgroundModel.
package motion

import (
	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
	"github.com/rs/zerolog"
)

// BackgroundModel separates foreground from background. Apply must update
// the model with every frame it sees.
type BackgroundModel interface {
	Apply(f frame.Frame) Mask
}

// Config holds the detector thresholds.
type Config struct {
	// Area is the blob size in full-resolution pixels that must be exceeded.
	Area int
	// Hits is the number of consecutive motion frames needed to trigger.
	Hits int
	// OpenIterations is the number of 3x3 opening passes applied to the
	// mask before measuring blobs. Defaults to 1.
	OpenIterations int
}

// Detector applies the area threshold and debounce on top of a model.
type Detector struct {
	cfg    Config
	model  BackgroundModel
	hits   int
	mask   Mask
	logger zerolog.Logger
}

// NewDetector returns a detector using model.
func NewDetector(cfg Config, model BackgroundModel) *Detector {
	if cfg.Hits < 1 {
		cfg.Hits = 1
	}
	if cfg.OpenIterations <= 0 {
		cfg.OpenIterations = 1
	}
	return &Detector{cfg: cfg, model: model, logger: log.WithComponent("motion")}
}

// Evaluate updates the model with f and returns the verdict for it.
func (d *Detector) Evaluate(f frame.Frame) Result {
	mask := d.model.Apply(f)
	mask = mask.Open(d.cfg.OpenIterations)
	d.mask = mask

	score := mask.LargestComponent() * mask.Scale * mask.Scale
	moving := score > d.cfg.Area
	if moving {
		d.hits++
		metrics.IncMotionFrame()
	} else {
		d.hits = 0
	}

	r := Result{
		Seq:       f.Seq,
		Score:     score,
		Motion:    moving,
		Hits:      d.hits,
		Triggered: d.hits >= d.cfg.Hits,
	}
	if d.hits == d.cfg.Hits {
		metrics.IncMotionTrigger()
		d.logger.Info().
			Str("event", "motion.triggered").
			Uint64(log.FieldSeq, f.Seq).
			Int(log.FieldScore, score).
			Int(log.FieldHits, d.hits).
			Msg("motion detected")
	} else {
		d.logger.Trace().
			Uint64(log.FieldSeq, f.Seq).
			Int(log.FieldScore, score).
			Bool("motion", moving).
			Int(log.FieldHits, d.hits).
			Msg("frame evaluated")
	}
	return r
}

// Mask returns the processed foreground mask of the last evaluated frame.
func (d *Detector) Mask() Mask { return d.mask }

// Reset clears the hit counter.
func (d *Detector) Reset() { d.hits = 0 }
