package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal, emailQueueDepth) }

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by channel (email/telegram/log) and status (queued/sent/retried/failed).",
		},
		[]string{"channel", "status"},
	)

	emailQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_queue_depth",
			Help: "Pending jobs in the outbound email queue.",
		},
	)
)

func IncNotification(channel, status string) {
	notificationsTotal.WithLabelValues(norm(channel), norm(status)).Inc()
}

func SetEmailQueueDepth(n int64) { emailQueueDepth.Set(float64(n)) }
