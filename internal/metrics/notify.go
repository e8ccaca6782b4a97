// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotifyPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_notify_published_total",
		Help: "Total number of notifications published by topic",
	}, []string{"topic"})

	NotifyDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_notify_dropped_total",
		Help: "Total number of notifications dropped by topic and reason (slow or closed consumer)",
	}, []string{"topic", "reason"})
)

// IncNotifyPublished records a published notification.
func IncNotifyPublished(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	NotifyPublishedTotal.WithLabelValues(topic).Inc()
}

// IncNotifyDrop records a dropped notification with a concrete reason.
func IncNotifyDrop(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	NotifyDroppedTotal.WithLabelValues(topic, reason).Inc()
}
