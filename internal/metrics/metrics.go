// Package metrics exposes Prometheus metrics for cache and job activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
)

// Metrics records cache and job activity. It implements cache.Recorder and
// jobs.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits          *prometheus.CounterVec
	cacheFetches       *prometheus.CounterVec
	cacheFetchDuration *prometheus.HistogramVec
	cacheInvalidations *prometheus.CounterVec
	jobTransitions     *prometheus.CounterVec
}

// New registers the metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Cache metrics
		cacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanctl_cache_hits_total",
				Help: "Queries answered from the cache without a fetch",
			},
			[]string{"operation"},
		),
		cacheFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanctl_cache_fetches_total",
				Help: "Fetches settled by the cache",
			},
			[]string{"operation", "result"},
		),
		cacheFetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oceanctl_cache_fetch_duration_seconds",
				Help:    "Fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheInvalidations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanctl_cache_invalidations_total",
				Help: "Entries invalidated, by tag",
			},
			[]string{"tag"},
		),

		// Job metrics
		jobTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanctl_job_transitions_total",
				Help: "Observed diagnostic job status transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hit implements cache.Recorder.
func (m *Metrics) Hit(operation string) {
	m.cacheHits.WithLabelValues(operation).Inc()
}

// Fetched implements cache.Recorder.
func (m *Metrics) Fetched(operation string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.cacheFetches.WithLabelValues(operation, result).Inc()
	m.cacheFetchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Invalidated implements cache.Recorder.
func (m *Metrics) Invalidated(tag cache.Tag, n int) {
	m.cacheInvalidations.WithLabelValues(string(tag)).Add(float64(n))
}

// Transition implements jobs.Recorder.
func (m *Metrics) Transition(from, to model.JobStatus) {
	m.jobTransitions.WithLabelValues(string(from), string(to)).Inc()
}
