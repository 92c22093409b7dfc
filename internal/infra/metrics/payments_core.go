package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Recorded payments by source (verify/webhook) and outcome (recorded/duplicate).",
		},
		[]string{"source", "outcome"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_minor_total",
			Help: "Total value of recorded payments in minor units, labelled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPayment(source, outcome string) {
	paymentsTotal.WithLabelValues(norm(source), norm(outcome)).Inc()
}

func AddPaymentRevenue(currency string, amountMinor int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amountMinor))
}
