package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallsTotal, gatewayLatency) }

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Outbound payment gateway calls by operation and result.",
		},
		[]string{"provider", "op", "result"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_latency_seconds",
			Help:    "Outbound payment gateway call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "op"},
	)
)

func ObserveGatewayCall(provider, op string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayCallsTotal.WithLabelValues(norm(provider), norm(op), result).Inc()
	gatewayLatency.WithLabelValues(norm(provider), norm(op)).Observe(d.Seconds())
}
