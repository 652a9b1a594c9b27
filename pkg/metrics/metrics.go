// Package metrics declares the prometheus instruments of the truth store.
// They register with the default registry and are served on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthstore_observations_total",
		Help: "Observation submissions by outcome (stored, duplicate, rejected)",
	}, []string{"outcome"})

	FragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthstore_raw_fragments_total",
		Help: "Raw fragments recorded by reason",
	}, []string{"reason"})

	RecomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truthstore_recompute_duration_seconds",
		Help:    "Snapshot recompute latency by trigger",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"trigger"})

	RecomputeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthstore_recompute_errors_total",
		Help: "Failed snapshot recomputes by trigger",
	}, []string{"trigger"})

	RecomputeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthstore_recompute_queue_depth",
		Help: "Keys waiting in the background recompute queue",
	})

	RecomputeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthstore_recompute_dropped_total",
		Help: "Background recomputes dropped because the queue was full",
	})

	FreshReadsShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthstore_fresh_reads_shared_total",
		Help: "Fresh snapshot reads served by another caller's recompute",
	})

	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthstore_merges_total",
		Help: "Merge requests by outcome (completed, rejected, failed)",
	}, []string{"outcome"})

	EventsPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthstore_event_publish_errors_total",
		Help: "Events that failed to publish by event type",
	}, []string{"event_type"})
)

// ObserveRecompute records the latency of a recompute and counts it as an
// error when err is non-nil.
func ObserveRecompute(trigger string, started time.Time, err error) {
	RecomputeDuration.WithLabelValues(trigger).Observe(time.Since(started).Seconds())
	if err != nil {
		RecomputeErrors.WithLabelValues(trigger).Inc()
	}
}
