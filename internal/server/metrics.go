// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Metrics collects the server's Prometheus instruments on a private
// registry so tests can create servers without collector collisions.
type Metrics struct {
	registry *prometheus.Registry

	searches   *prometheus.CounterVec
	iterations prometheus.Counter
	documents  prometheus.Histogram
	duration   prometheus.Histogram
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrieval_searches_total",
			Help: "Completed searches by stop reason.",
		}, []string{"reason"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retrieval_iterations_total",
			Help: "Iterations executed across all searches.",
		}),
		documents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrieval_documents_returned",
			Help:    "Documents returned per completed search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrieval_search_duration_seconds",
			Help:    "Wall-clock duration per search.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.searches, m.iterations, m.documents, m.duration)
	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(res *types.SearchResult, elapsed time.Duration) {
	m.searches.WithLabelValues(string(res.Decision.Reason)).Inc()
	m.iterations.Add(float64(res.Iterations))
	m.documents.Observe(float64(len(res.Documents)))
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
