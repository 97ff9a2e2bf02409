package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the retrieval engine.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RetrievalDuration.WithLabelValues("false").Observe(time.Since(start).Seconds())
type Metrics struct {
	// RetrievalDuration measures end-to-end RetrieveContext latency.
	// Labels: reranked (true|false)
	RetrievalDuration *prometheus.HistogramVec

	// RetrievalResults observes the number of results per retrieval.
	RetrievalResults prometheus.Histogram

	// EmbeddingRequests counts embedding provider calls.
	// Labels: provider, status (success|error)
	EmbeddingRequests *prometheus.CounterVec

	// StoreErrors counts vector store failures by operation.
	// Labels: operation (search|insert|delete)
	StoreErrors *prometheus.CounterVec

	// RerankFallbacks counts reranker failures that fell back to the
	// heuristic ordering.
	RerankFallbacks prometheus.Counter

	// MessagesIngested counts ingested messages by source.
	// Labels: source (whatsapp|gmail|dashboard|minimee)
	MessagesIngested *prometheus.CounterVec

	// BlocksFormed counts conversational blocks by chunking strategy.
	// Labels: strategy (fixed|topic)
	BlocksFormed *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RetrievalDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_retrieval_duration_seconds",
				Help:    "Duration of context retrieval in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"reranked"},
		),

		RetrievalResults: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recall_retrieval_results",
				Help:    "Number of results returned per retrieval",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),

		EmbeddingRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_embedding_requests_total",
				Help: "Total embedding provider calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_store_errors_total",
				Help: "Total vector store failures by operation",
			},
			[]string{"operation"},
		),

		RerankFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_rerank_fallbacks_total",
				Help: "Total reranker failures that fell back to heuristic ordering",
			},
		),

		MessagesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_messages_ingested_total",
				Help: "Total messages ingested by source",
			},
			[]string{"source"},
		),

		BlocksFormed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_blocks_formed_total",
				Help: "Total conversational blocks formed by strategy",
			},
			[]string{"strategy"},
		),
	}
}
