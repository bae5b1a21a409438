// Package telemetry provides observability primitives for the similar-items job.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the job.
type Metrics struct {
	ItemsTotal      *prometheus.CounterVec
	ItemDuration    prometheus.Histogram
	ItemsAbandoned  prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	EngineDuration  *prometheus.HistogramVec
	EngineErrors    *prometheus.CounterVec
	BreakerRejects  prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	SinkQueueLength prometheus.Gauge
	SinkFlushes     *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "items_total",
			Help:      "Total number of processed items by outcome.",
		}, []string{"outcome"}),

		ItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "taste",
			Name:                            "item_duration_seconds",
			Help:                            "Compute plus write duration per item in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		ItemsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "items_abandoned_total",
			Help:      "Items claimed from the cursor but not processed because of a stop request.",
		}),

		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taste",
			Name:      "active_workers",
			Help:      "Number of currently running workers.",
		}),

		EngineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "taste",
			Name:                            "engine_duration_seconds",
			Help:                            "Scoring engine call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"engine"}),

		EngineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "engine_errors_total",
			Help:      "Total scoring engine errors.",
		}, []string{"engine", "status"}),

		BreakerRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "breaker_rejects_total",
			Help:      "Engine calls short-circuited by an open breaker.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "similarity_cache_hits_total",
			Help:      "Total pairwise similarity cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "similarity_cache_misses_total",
			Help:      "Total pairwise similarity cache misses.",
		}),

		SinkQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taste",
			Name:      "sink_queue_length",
			Help:      "Current number of buffered result lists.",
		}),

		SinkFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "sink_flushes_total",
			Help:      "Total sink batch flushes by status.",
		}, []string{"status"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taste",
			Name:      "admin_requests_total",
			Help:      "Total number of admin HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "taste",
			Name:                            "admin_request_duration_seconds",
			Help:                            "Admin HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.ItemsTotal,
		m.ItemDuration,
		m.ItemsAbandoned,
		m.ActiveWorkers,
		m.EngineDuration,
		m.EngineErrors,
		m.BreakerRejects,
		m.CacheHits,
		m.CacheMisses,
		m.SinkQueueLength,
		m.SinkFlushes,
		m.RequestsTotal,
		m.RequestDuration,
	)

	return m
}
