// SPDX-License-Identifier: MIT

package capture

import (
	"time"

	"golang.org/x/time/rate"
)

// Pacer admits at most fps frames per second, judged on frame arrival time.
// A burst of 2 tolerates arrival jitter around the nominal interval without
// letting a backlog through.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer for fps. fps <= 0 admits every frame.
func NewPacer(fps int) *Pacer {
	if fps <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(fps), 2)}
}

// Admit reports whether a frame arriving at t may be delivered.
func (p *Pacer) Admit(t time.Time) bool {
	return p.limiter.AllowN(t, 1)
}
