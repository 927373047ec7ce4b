package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index builder metrics.
var (
	IndexRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_run_duration_seconds",
			Help:      "Index builder run duration by kind and outcome",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"kind", "status"},
	)

	IndexDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the live index generation",
		},
		[]string{"scope", "module"},
	)

	IndexFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_failures_total",
			Help:      "Failed index runs by the state they failed in",
		},
		[]string{"kind", "stage"},
	)

	IndexGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_generation",
			Help:      "Generation number of the live manifest",
		},
		[]string{"scope"},
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index builder metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexRunDuration)
	prometheus.MustRegister(IndexDocuments)
	prometheus.MustRegister(IndexFailuresTotal)
	prometheus.MustRegister(IndexGeneration)
	indexMetricsRegistered = true
}
