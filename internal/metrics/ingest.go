package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest pipeline and documentation generation metrics.
var (
	DocumentsReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_read_total",
			Help:      "Documents loaded by the directory reader",
		},
		[]string{"folder"},
	)

	DecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Files skipped because they could not be decoded",
		},
		[]string{"folder"},
	)

	ChunksEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Documents emitted by the chunk grouper",
		},
		[]string{"folder"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of one folder ingestion",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"mode", "status"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Chat completion requests made for documentation generation",
		},
		[]string{"model", "status"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Chat completion tokens consumed",
		},
		[]string{"model", "type"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers pipeline metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsReadTotal)
	prometheus.MustRegister(DecodeFailuresTotal)
	prometheus.MustRegister(ChunksEmittedTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMTokensTotal)
	ingestMetricsRegistered = true
}
