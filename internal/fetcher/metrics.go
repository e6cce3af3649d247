package fetcher

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "fetcher",
			Name:      "fetches_total",
			Help:      "Total LoRA fetch calls by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lorad",
			Subsystem: "fetcher",
			Name:      "download_duration_seconds",
			Help:      "Wall-clock duration of completed downloads",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(fetchesTotal, fetchDuration)
}

const (
	outcomeOK      = "ok"
	outcomeCached  = "cached"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
)

func observeFetch(src Source, outcome string) {
	fetchesTotal.WithLabelValues(src.String(), outcome).Inc()
}
