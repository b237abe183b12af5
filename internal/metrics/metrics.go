// Package metrics registers the prometheus instruments the worker
// exposes over /metrics, following the promauto idiom used throughout
// the teacher's gateway monitoring middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every instrument the job runtime and split engine
// touch.
type Metrics struct {
	JobsQueued         prometheus.Gauge
	JobsActive         prometheus.Gauge
	JobsCompletedTotal prometheus.Counter
	JobsFailedTotal    prometheus.Counter
	JobDuration        prometheus.Histogram
	PartsEmittedTotal  prometheus.Counter
	WorkerRestarts     prometheus.Counter
}

// New registers all instruments against the default registry.
func New() *Metrics {
	return &Metrics{
		JobsQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitengine",
			Name:      "jobs_queued",
			Help:      "Number of jobs currently waiting in the split queue.",
		}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitengine",
			Name:      "jobs_active",
			Help:      "Number of jobs currently being processed.",
		}),
		JobsCompletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "splitengine",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that completed successfully.",
		}),
		JobsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "splitengine",
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that failed, including cancellations and timeouts.",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splitengine",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of a split job from dequeue to finish.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PartsEmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "splitengine",
			Name:      "parts_emitted_total",
			Help:      "Total number of part STL files emitted across all jobs.",
		}),
		WorkerRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "splitengine",
			Name:      "worker_restarts_total",
			Help:      "Total number of times a worker exited due to a restart signal.",
		}),
	}
}
