package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(webhookEventsTotal, webhookDuration) }

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook deliveries by event and outcome.",
		},
		[]string{"event", "outcome"}, // outcome: processed|duplicate|ignored|unhandled|error|bad_signature|malformed
	)

	webhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Time spent reconciling one webhook delivery.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func ObserveWebhook(event, outcome string, d time.Duration) {
	if event == "" {
		event = "unknown"
	}
	webhookEventsTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
	webhookDuration.Observe(d.Seconds())
}
