package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		recurringChargesTotal,
		recurringDeactivationsTotal,
		referralCreditsTotal,
		referralCreditAmountTotal,
	)
}

var (
	recurringChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_charges_total",
			Help: "Recurring charge attempts by terminal outcome (success/failed/processing/error).",
		},
		[]string{"outcome"},
	)

	recurringDeactivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_deactivations_total",
			Help: "Subscriptions deactivated, by reason (failure_limit/token_invalid/manual).",
		},
		[]string{"reason"},
	)

	referralCreditsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Referral credits written to partner balances.",
		},
	)

	referralCreditAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_credit_amount_total",
			Help: "Total monetary value credited to partners.",
		},
	)
)

func IncRecurringCharge(outcome string) {
	recurringChargesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRecurringDeactivation(reason string) {
	recurringDeactivationsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncReferralCredit(amount float64) {
	referralCreditsTotal.Inc()
	referralCreditAmountTotal.Add(amount)
}
