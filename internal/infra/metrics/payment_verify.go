package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentVerifyRequests,
		paymentVerifyDuration,
	)
}

var (
	// result: ok|fail
	// reason (fail only): bad_request|bad_signature|not_found|persist_error|unknown
	paymentVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of one-time payment verifications by result and reason.",
		},
		[]string{"result", "reason"},
	)

	paymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of one-time payment verification in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)
)

// ObservePaymentVerify records one verification outcome. reason is ignored
// for result "ok".
func ObservePaymentVerify(result, reason string, d time.Duration) {
	if result == "ok" {
		reason = ""
	}
	paymentVerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
	paymentVerifyDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}
