package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus指标
var (
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_embedding_requests_total",
			Help: "Total number of embedding requests by final status",
		},
		[]string{"status"}, // success, error
	)

	EmbeddingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragbot_embedding_retries_total",
			Help: "Total number of embedding request retries after transient failures",
		},
	)

	EmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_embedding_cache_total",
			Help: "Embedding cache lookups",
		},
		[]string{"result"}, // hit, miss, error
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragbot_search_duration_seconds",
			Help:    "Duration of vector searches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // plain, filtered
	)

	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_agent_runs_total",
			Help: "Retrieval agent invocations by outcome",
		},
		[]string{"outcome"}, // answered, no_results, error, unavailable
	)

	AgentStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragbot_agent_step_duration_seconds",
			Help:    "Duration of retrieval agent steps",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_chat_turns_total",
			Help: "Free-form chat turns by outcome",
		},
		[]string{"outcome"}, // answered, error
	)

	IngestedChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_ingested_chunks_total",
			Help: "Chunks processed by the ingestion pipeline",
		},
		[]string{"status"}, // stored, failed
	)
)

// ObserveDuration 记录从 start 开始的耗时
func ObserveDuration(h *prometheus.HistogramVec, label string, start time.Time) {
	h.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
