// Package metrics declares the proxy's prometheus/client_golang
// metrics, grounded on the teacher's scheduler/server metrics usage
// pattern (package-level registered collectors, one file per
// subsystem). grpc-ecosystem/go-grpc-prometheus instruments the
// cmd/*/main.go gRPC server directly rather than through this package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommitBatchesTotal counts dispatched CommitBatch units.
	CommitBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "txnproxy",
		Subsystem: "commit",
		Name:      "batches_total",
		Help:      "Total number of commit batches dispatched.",
	})

	// CommitBatchSize observes the transaction count per dispatched batch.
	CommitBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txnproxy",
		Subsystem: "commit",
		Name:      "batch_size",
		Help:      "Transaction count per dispatched commit batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// CommitLatencySeconds observes end-to-end batch commit latency.
	CommitLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txnproxy",
		Subsystem: "commit",
		Name:      "latency_seconds",
		Help:      "End-to-end commit batch latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// LargeTransactions counts oversized single requests surfaced as the
	// large_transaction diagnostic (spec.md section 3, supplemented
	// feature).
	LargeTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "txnproxy",
		Subsystem: "commit",
		Name:      "large_transactions_total",
		Help:      "Requests exceeding the large-transaction diagnostic threshold.",
	})

	// MemoryLimitRejections counts proxy_memory_limit_exceeded replies.
	MemoryLimitRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "txnproxy",
		Subsystem: "commit",
		Name:      "memory_limit_rejections_total",
		Help:      "Requests rejected with proxy_memory_limit_exceeded.",
	})

	// GRVRequestsTotal counts GetReadVersionRequests by priority.
	GRVRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txnproxy",
		Subsystem: "grv",
		Name:      "requests_total",
		Help:      "GetReadVersionRequests received, by priority.",
	}, []string{"priority"})

	// GRVThrottledTotal counts batch_transaction_throttled replies.
	GRVThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "txnproxy",
		Subsystem: "grv",
		Name:      "throttled_total",
		Help:      "GRV requests refused with batch_transaction_throttled.",
	})
)

func init() {
	prometheus.MustRegister(
		CommitBatchesTotal,
		CommitBatchSize,
		CommitLatencySeconds,
		LargeTransactions,
		MemoryLimitRejections,
		GRVRequestsTotal,
		GRVThrottledTotal,
	)
}
