package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TreesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkgate_trees_built_total",
		Help: "The total number of bulk order trees built",
	}, []string{"status"})

	TreeHeight = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulkgate_tree_height",
		Help:    "Height of built bulk order trees",
		Buckets: prometheus.LinearBuckets(1, 1, 24),
	})

	TreeBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulkgate_tree_build_seconds",
		Help:    "Time spent hashing orders and building a tree",
		Buckets: prometheus.DefBuckets,
	})

	ProofsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkgate_proofs_served_total",
		Help: "Total inclusion proofs returned",
	})

	Signatures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkgate_signatures_total",
		Help: "Bulk order signatures by source and result",
	}, []string{"source", "result"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkgate_verifications_total",
		Help: "Order signature verifications by method and result",
	}, []string{"method", "result"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulkgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
)
