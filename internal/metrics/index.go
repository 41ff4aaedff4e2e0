package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index build and query Prometheus metrics.
var (
	RebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "rebuilds_total",
			Help:      "Index rebuilds by outcome",
		},
		[]string{"status"}, // "success" / "failed" / "error"
	)

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retriever",
			Name:      "rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SourcesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "sources_processed_total",
			Help:      "Sources processed during rebuilds by type and outcome",
		},
		[]string{"type", "status"}, // status: "indexed" / "skipped" / "failed"
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retriever",
			Name:      "index_chunks",
			Help:      "Number of chunks in the serving index",
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retriever",
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds, embedding included",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	QueryResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retriever",
			Name:      "query_results",
			Help:      "Number of passages returned per query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers Prometheus build and query metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(RebuildsTotal)
	prometheus.MustRegister(RebuildDuration)
	prometheus.MustRegister(SourcesProcessedTotal)
	prometheus.MustRegister(IndexChunks)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryResults)
	indexMetricsRegistered = true
}
