// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notify fans pipeline events out to subscribers.
//
// Publishing never blocks: each subscriber has a bounded channel and events
// that do not fit are dropped and counted. The capture loop publishes from
// its hot path, so a slow consumer must never stall it.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity used when none is set.
const DefaultBuffer = 64

const dropLogEvery = 100

// Hub is an in-process publish/subscribe fan-out.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	drops atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Subscription receives events for a set of topics.
type Subscription struct {
	hub    *Hub
	topics map[string]struct{}
	ch     chan Event
	once   sync.Once
}

// Subscribe registers a subscriber for the given topics, or for all topics
// when none are given. On a closed hub the returned channel is closed.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, h.buffer)}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every interested subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	topic := ev.Topic()
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		metrics.IncNotifyDrop(topic, "closed")
		return
	}
	metrics.IncNotifyPublished(topic)
	for s := range h.subs {
		if !s.wants(topic) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			metrics.IncNotifyDrop(topic, "slow_consumer")
			if n := h.drops.Add(1); n%dropLogEvery == 1 {
				logger := log.WithComponent("notify")
				logger.Warn().
					Str("topic", topic).
					Uint64("dropped", n).
					Msg("subscriber too slow, dropping notifications")
			}
		}
	}
}

// Close closes every subscription. Publishing afterwards is a counted no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.once.Do(func() { close(s.ch) })
	}
	h.subs = nil
}

// Dropped returns the number of events dropped for slow consumers.
func (h *Hub) Dropped() uint64 { return h.drops.Load() }

// C returns the delivery channel. It is closed by Close or when the hub closes.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs, s)
	s.once.Do(func() { close(s.ch) })
}

func (s *Subscription) wants(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}
