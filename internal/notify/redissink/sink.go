// SPDX-License-Identifier: MIT

// Package redissink forwards pipeline notifications to Redis so that
// external consumers (mailers, indexers) can react to finished segments.
//
// Every event is published as a JSON envelope on a pub/sub channel and also
// pushed onto a capped list, "<channel>:recent", for consumers that poll.
// Preview events are never forwarded.
package redissink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/notify"
)

// RecentMax is the length cap of the recent-events list.
const RecentMax = 100

const writeTimeout = 3 * time.Second

// Envelope is the wire format of a forwarded event.
type Envelope struct {
	Topic string          `json:"topic"`
	At    time.Time       `json:"at"`
	Event json.RawMessage `json:"event"`
}

// Config holds Redis connection settings.
type Config struct {
	Addr    string
	Channel string
}

// Sink publishes notifications to Redis.
type Sink struct {
	client  redis.UniversalClient
	channel string
	logger  zerolog.Logger
	now     func() time.Time
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	s := New(client, cfg.Channel)
	s.logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", cfg.Channel).
		Msg("connected to Redis notification sink")
	return s, nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, channel string) *Sink {
	return &Sink{
		client:  client,
		channel: channel,
		logger:  log.WithComponent("notify.redis"),
		now:     time.Now,
	}
}

// RecentKey is the list key holding the most recent envelopes.
func (s *Sink) RecentKey() string { return s.channel + ":recent" }

// Run forwards events from sub until ctx is done or sub is closed.
// Individual write failures are logged and skipped.
func (s *Sink) Run(ctx context.Context, sub *notify.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.Forward(ctx, ev); err != nil {
				s.logger.Warn().Err(err).Str("topic", ev.Topic()).Msg("failed to forward notification")
			}
		}
	}
}

// Forward writes one event to Redis.
func (s *Sink) Forward(ctx context.Context, ev notify.Event) error {
	if ev.Topic() == notify.TopicPreview {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Topic(), err)
	}
	payload, err := json.Marshal(Envelope{Topic: ev.Topic(), At: s.now().UTC(), Event: body})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, payload)
	pipe.LPush(ctx, s.RecentKey(), payload)
	pipe.LTrim(ctx, s.RecentKey(), 0, RecentMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Topic(), err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Sink) Close() error { return s.client.Close() }
