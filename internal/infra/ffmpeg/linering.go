// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines written to it. It is used as ffmpeg's
// stderr so failures can be reported with the tail of the log.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial strings.Builder
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer. Lines may arrive split across writes; an
// unterminated trailing line is kept until its newline arrives.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			r.partial.WriteString(s)
			break
		}
		r.partial.WriteString(s[:i])
		r.pushLocked(r.partial.String())
		r.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) pushLocked(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	size := len(r.lines)
	r.lines[(r.head+r.count)%size] = line
	if r.count < size {
		r.count++
	} else {
		r.head = (r.head + 1) % size
	}
}

// LastN returns up to n most recent lines, oldest first, including an
// unterminated trailing line.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]string, 0, r.count+1)
	for i := 0; i < r.count; i++ {
		all = append(all, r.lines[(r.head+i)%len(r.lines)])
	}
	if tail := strings.TrimSpace(r.partial.String()); tail != "" {
		all = append(all, tail)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Tail joins the last n lines with " | " for error messages.
func (r *LineRing) Tail(n int) string {
	return strings.Join(r.LastN(n), " | ")
}
