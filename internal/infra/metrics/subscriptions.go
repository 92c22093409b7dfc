package metrics

import (
	"lms-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsTotal,
		enrollmentsTotal,
		entitlementChangesTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions moved to expired by the expiry worker.",
		},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)

	enrollmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollments_total",
			Help: "Enrollment attempts by mode (free/one-time/subscription) and result.",
		},
		[]string{"mode", "result"},
	)

	entitlementChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_changes_total",
			Help: "Entitlement grants and revocations.",
		},
		[]string{"op"}, // grant | revoke
	)
)

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

// SetSubscriptionsTotal publishes every known status, zero when absent.
func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for _, status := range model.AllSubscriptionStatuses {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func IncEnrollment(mode model.SubscriptionType, result string) {
	enrollmentsTotal.WithLabelValues(norm(string(mode)), norm(result)).Inc()
}

func IncEntitlementChange(op string) {
	entitlementChangesTotal.WithLabelValues(norm(op)).Inc()
}
