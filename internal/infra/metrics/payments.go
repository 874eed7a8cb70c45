package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsFinalizedTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_finalized_total",
			Help: "One-time and first-charge payments finalized by the reconciler, by outcome.",
		},
		[]string{"outcome"},
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total monetary value of successfully finalized payments.",
		},
	)
)

func IncPaymentFinalized(outcome string) {
	paymentsFinalizedTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddPaymentRevenue(amount float64) {
	paymentsRevenueTotal.Add(amount)
}
