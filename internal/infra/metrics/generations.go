package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		generationsStartedTotal,
		generationsFinishedTotal,
		generationsRejectedTotal,
		generationsDuplicateTotal,
		generationLatencySeconds,
		generationsSweptTotal,
	)
}

var (
	generationsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_started_total",
			Help: "Admitted generation requests per model/kind.",
		},
		[]string{"model", "kind"},
	)

	generationsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_finished_total",
			Help: "Generations reaching a terminal status (completed/failed/cancelled).",
		},
		[]string{"model", "status"},
	)

	generationsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_rejected_total",
			Help: "Start requests refused at admission, labeled by reason.",
		},
		[]string{"reason"}, // 'insufficient_credits', 'max_active', 'rate_limited', 'banned'
	)

	generationsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generations_duplicate_total",
			Help: "Start requests deduplicated by idempotency key.",
		},
	)

	generationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_latency_seconds",
			Help:    "Wall time from admission to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"model", "success"},
	)

	generationsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generations_swept_total",
			Help: "Stuck generations closed by the reconciliation sweeper.",
		},
	)
)

func IncGenerationStarted(model, kind string) {
	generationsStartedTotal.WithLabelValues(norm(model), norm(kind)).Inc()
}

func IncGenerationFinished(model, status string) {
	generationsFinishedTotal.WithLabelValues(norm(model), norm(status)).Inc()
}

func IncGenerationRejected(reason string) {
	generationsRejectedTotal.WithLabelValues(norm(reason)).Inc()
}

func IncGenerationDuplicate() {
	generationsDuplicateTotal.Inc()
}

func ObserveGenerationLatency(model string, seconds float64, success bool) {
	generationLatencySeconds.WithLabelValues(norm(model), strconv.FormatBool(success)).
		Observe(seconds)
}

func AddGenerationsSwept(n int) {
	generationsSweptTotal.Add(float64(n))
}
