// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/smartcam/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestHub_DeliversByTopic(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	all := h.Subscribe()
	motionOnly := h.Subscribe(TopicMotion)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Publish(MotionChanged{Active: true, At: at})
	h.Publish(SegmentCompleted{ID: "a", State: "closed"})

	require.Len(t, all.C(), 2)
	require.Len(t, motionOnly.C(), 1)
	assert.Equal(t, MotionChanged{Active: true, At: at}, <-motionOnly.C())
	assert.Equal(t, TopicMotion, (<-all.C()).Topic())
	assert.Equal(t, TopicSegment, (<-all.C()).Topic())
}

func TestHub_SlowConsumerDropsWithoutBlocking(t *testing.T) {
	h := NewHub(2)
	defer h.Close()
	sub := h.Subscribe(TopicPreview)

	before := getCounterValue(t, metrics.NotifyDroppedTotal.WithLabelValues(TopicPreview, "slow_consumer"))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(Preview{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Len(t, sub.C(), 2)
	assert.Equal(t, uint64(8), h.Dropped())
	after := getCounterValue(t, metrics.NotifyDroppedTotal.WithLabelValues(TopicPreview, "slow_consumer"))
	assert.Equal(t, 8.0, after-before)
}

func TestHub_CloseClosesSubscriptions(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe()
	h.Close()
	h.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	sub.Close()

	before := getCounterValue(t, metrics.NotifyDroppedTotal.WithLabelValues(TopicPipeline, "closed"))
	h.Publish(PipelineStateChanged{State: "stopped"})
	after := getCounterValue(t, metrics.NotifyDroppedTotal.WithLabelValues(TopicPipeline, "closed"))
	assert.Equal(t, 1.0, after-before)

	late := h.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	h := NewHub(4)
	defer h.Close()
	sub := h.Subscribe()
	sub.Close()
	sub.Close()

	h.Publish(MotionChanged{Active: true})
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestErrString(t *testing.T) {
	assert.Empty(t, ErrString(nil))
	assert.Equal(t, assert.AnError.Error(), ErrString(assert.AnError))
}
