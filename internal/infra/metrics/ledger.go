package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		creditsDebitedTotal,
		creditsCreditedTotal,
		refundsTotal,
	)
}

var (
	creditsDebitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_debited_total",
			Help: "Sum of credits charged for admitted generations.",
		},
	)

	creditsCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_credited_total",
			Help: "Sum of credits added, labeled by source (topup/refund/bonus).",
		},
		[]string{"source"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund attempts by outcome ('issued' or 'already_refunded').",
		},
		[]string{"outcome"},
	)
)

func AddCreditsDebited(amount int64) {
	creditsDebitedTotal.Add(float64(amount))
}

func AddCreditsCredited(source string, amount int64) {
	creditsCreditedTotal.WithLabelValues(norm(source)).Add(float64(amount))
}

func IncRefund(outcome string) {
	refundsTotal.WithLabelValues(norm(outcome)).Inc()
}
