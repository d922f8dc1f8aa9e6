// Package metrics holds the Prometheus collectors of the tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deal_tracker"

var (
	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Enrichment requests by action and outcome (success, partial, fallback)",
		},
		[]string{"action", "outcome"},
	)

	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of enrichment calls in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"action"},
	)

	EnrichmentCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_cache_lookups_total",
			Help:      "Enrichment cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	DealMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_mutations_total",
			Help:      "Deal mutations by timeline event type",
		},
		[]string{"event"},
	)

	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attention_digests_total",
			Help:      "Attention digests by result (sent, updated, empty, failed)",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
