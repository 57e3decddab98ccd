package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relationship mutations
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familyships_mutations_total",
		Help: "Total number of tree mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	MutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "familyships_mutation_duration_seconds",
		Help:    "Duration of tree mutations including the store transaction",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Ownership
	TreesProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "familyships_trees_provisioned_total",
		Help: "Total number of trees created on first login",
	})

	// Rate limiting
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "familyships_rate_limited_requests_total",
		Help: "Total number of API requests rejected by the rate limiter",
	})
)
