// SPDX-License-Identifier: MIT

// Package preroll keeps the most recent frames so a segment can start
// before the motion that triggered it.
package preroll

import (
	"math"
	"sync"

	"github.com/ManuGH/smartcam/internal/frame"
)

// Capacity returns the number of frames covering preSeconds at fps.
func Capacity(preSeconds float64, fps int) int {
	n := int(math.Floor(preSeconds * float64(fps)))
	if n < 0 {
		return 0
	}
	return n
}

// Buffer is a fixed-capacity FIFO ring of frames. Push is O(1) and evicts
// the oldest frame when full.
type Buffer struct {
	mu    sync.RWMutex
	ring  []frame.Frame
	head  int // index of the oldest frame
	count int
}

// New returns an empty buffer holding at most capacity frames.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{ring: make([]frame.Frame, capacity)}
}

// Push appends f, evicting the oldest frame when the buffer is full.
// With capacity 0 the frame is discarded.
func (b *Buffer) Push(f frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.ring)
	if size == 0 {
		return
	}
	if b.count < size {
		b.ring[(b.head+b.count)%size] = f
		b.count++
		return
	}
	b.ring[b.head] = f
	b.head = (b.head + 1) % size
}

// Snapshot returns the buffered frames oldest first. The buffer is unchanged.
func (b *Buffer) Snapshot() []frame.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Buffer) snapshotLocked() []frame.Frame {
	out := make([]frame.Frame, b.count)
	size := len(b.ring)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.head+i)%size]
	}
	return out
}

// Resize changes the capacity, keeping the newest frames that fit.
func (b *Buffer) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.snapshotLocked()
	if len(frames) > capacity {
		frames = frames[len(frames)-capacity:]
	}
	b.ring = make([]frame.Frame, capacity)
	copy(b.ring, frames)
	b.head = 0
	b.count = len(frames)
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the capacity.
func (b *Buffer) Cap() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ring)
}

// Clear drops all frames.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.head, b.count = 0, 0
}
