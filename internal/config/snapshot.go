// SPDX-License-Identifier: MIT

package config

import "time"

// Snapshot is an immutable copy of a Config taken when a pipeline starts,
// with the second/minute based keys resolved into durations. The pre-roll
// stays in seconds because its frame capacity is preroll.Capacity(PreSeconds, FPS).
type Snapshot struct {
	Config

	PostRoll      time.Duration
	MaxSegment    time.Duration
	CompressAfter time.Duration
	TakenAt       time.Time
}

// Snapshot returns a deep copy of c suitable for handing to a pipeline run.
func (c Config) Snapshot() Snapshot {
	cp := c
	cp.Mail = cloneMap(c.Mail)
	cp.RTSP = cloneMap(c.RTSP)
	return Snapshot{
		Config:        cp,
		PostRoll:      seconds(c.PostSeconds),
		MaxSegment:    seconds(c.MaxSegmentSeconds),
		CompressAfter: seconds(c.CompressAfterMin * 60),
		TakenAt:       time.Now(),
	}
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
