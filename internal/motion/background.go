// SPDX-License-Identifier: MIT

package motion

import (
	"math"

	"github.com/ManuGH/smartcam/internal/frame"
)

// RunningAverageConfig tunes RunningAverage.
type RunningAverageConfig struct {
	// Scale downsamples frames by this factor in both directions.
	Scale int
	// Threshold is the luminance difference (0-255) that marks foreground.
	Threshold int
	// LearningRate is the weight of the newest frame in the background, in (0, 1].
	LearningRate float64
}

// RunningAverage models the background as an exponential running average of
// downscaled luminance. The first frame becomes the background and yields
// an empty mask.
type RunningAverage struct {
	cfg    RunningAverageConfig
	format frame.Format
	w, h   int
	bg     []float32
	luma   []float32
}

// NewRunningAverage returns an uninitialised model.
func NewRunningAverage(cfg RunningAverageConfig) *RunningAverage {
	if cfg.Scale < 1 {
		cfg.Scale = 1
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = 0.05
	}
	return &RunningAverage{cfg: cfg}
}

// Apply implements BackgroundModel.
func (m *RunningAverage) Apply(f frame.Frame) Mask {
	if f.Format != m.format || m.bg == nil {
		m.reset(f.Format)
		m.downscale(f)
		copy(m.bg, m.luma)
		return Mask{Width: m.w, Height: m.h, Scale: m.cfg.Scale, Pix: make([]byte, m.w*m.h)}
	}

	m.downscale(f)
	mask := Mask{Width: m.w, Height: m.h, Scale: m.cfg.Scale, Pix: make([]byte, m.w*m.h)}
	thr := float32(m.cfg.Threshold)
	lr := float32(m.cfg.LearningRate)
	for i, l := range m.luma {
		d := l - m.bg[i]
		if float32(math.Abs(float64(d))) > thr {
			mask.Pix[i] = on
		}
		m.bg[i] += lr * d
	}
	return mask
}

func (m *RunningAverage) reset(format frame.Format) {
	m.format = format
	m.w = format.Width / m.cfg.Scale
	m.h = format.Height / m.cfg.Scale
	if m.w < 1 {
		m.w = 1
	}
	if m.h < 1 {
		m.h = 1
	}
	m.bg = make([]float32, m.w*m.h)
	m.luma = make([]float32, m.w*m.h)
}

// downscale fills m.luma with block-averaged luminance.
func (m *RunningAverage) downscale(f frame.Frame) {
	s := m.cfg.Scale
	for by := 0; by < m.h; by++ {
		for bx := 0; bx < m.w; bx++ {
			sum, n := 0, 0
			for y := by * s; y < (by+1)*s && y < f.Format.Height; y++ {
				for x := bx * s; x < (bx+1)*s && x < f.Format.Width; x++ {
					sum += int(f.Luma(x, y))
					n++
				}
			}
			if n > 0 {
				m.luma[by*m.w+bx] = float32(sum) / float32(n)
			}
		}
	}
}
