package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		billingPassTotal,
		billingPassDuration,
		billingPassSkippedTotal,
	)
}

var (
	billingPassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_pass_total",
			Help: "Scheduler pass executions by pass name and result (ok/error).",
		},
		[]string{"pass", "result"},
	)

	billingPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_pass_duration_seconds",
			Help:    "Wall time of one scheduler pass.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"pass"},
	)

	billingPassSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_pass_skipped_total",
			Help: "Passes skipped because another instance held the lock.",
		},
		[]string{"pass"},
	)
)

func ObserveBillingPass(pass string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	billingPassTotal.WithLabelValues(norm(pass), result).Inc()
	billingPassDuration.WithLabelValues(norm(pass)).Observe(d.Seconds())
}

func IncBillingPassSkipped(pass string) {
	billingPassSkippedTotal.WithLabelValues(norm(pass)).Inc()
}
