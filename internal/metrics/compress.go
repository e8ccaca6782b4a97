package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompressionJobs tracks compression job outcomes
	CompressionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_compression_jobs_total",
		Help: "Total compression jobs by terminal result",
	}, []string{"result"})

	// CompressionAttempts tracks individual transcode attempts
	CompressionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcam_compression_attempts_total",
		Help: "Total transcode attempts by result",
	}, []string{"result"})

	// CompressionQueueDepth tracks jobs waiting for their cooldown or a worker
	CompressionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartcam_compression_queue_depth",
		Help: "Number of compression jobs pending (not yet terminal)",
	})

	// CompressionInFlight tracks running transcodes
	CompressionInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartcam_compression_in_flight",
		Help: "Number of transcodes currently running",
	})

	// TranscodeDuration tracks wall time of transcode attempts
	TranscodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartcam_transcode_duration_seconds",
		Help:    "Duration of transcode attempts",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 12), // 0.5s to ~17min
	}, []string{"result"})

	// BytesSaved tracks the size reduction achieved by compression
	BytesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartcam_compression_bytes_saved_total",
		Help: "Total bytes reclaimed by replacing originals with compressed files",
	})
)
