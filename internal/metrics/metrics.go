// package metrics holds the Prometheus instruments for the ingestion
// pipeline and feed engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopcast_jobs_processed_total",
		Help: "Processing jobs completed, by kind and outcome.",
	}, []string{"kind", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loopcast_job_duration_seconds",
		Help:    "Wall-clock duration of processing jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loopcast_queue_depth",
		Help: "Queued processing jobs awaiting a worker.",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loopcast_active_workers",
		Help: "Workers currently holding a job lease.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopcast_uploads_total",
		Help: "Upload submissions, by outcome.",
	}, []string{"outcome"})

	DuplicateCallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopcast_duplicate_callbacks_total",
		Help: "Worker callbacks ignored because the asset was already terminal.",
	})

	FeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopcast_feed_requests_total",
		Help: "Feed ranking requests, by outcome.",
	}, []string{"outcome"})

	FeedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loopcast_feed_latency_seconds",
		Help:    "Latency of feed ranking requests.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	SignalIncrements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopcast_signal_increments_total",
		Help: "Engagement counter increments, by kind.",
	}, []string{"kind"})
)
