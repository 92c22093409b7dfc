//go:build !integration

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"lms-billing/internal/domain/model"
)

func TestSetSubscriptionsTotal_ZeroesMissingStatuses(t *testing.T) {
	SetSubscriptionsTotal(map[model.SubscriptionStatus]int{model.SubscriptionStatusActive: 4})

	if got := testutil.ToFloat64(subscriptionsTotal.WithLabelValues("active")); got != 4 {
		t.Errorf("expected 4 active, got %v", got)
	}
	if got := testutil.ToFloat64(subscriptionsTotal.WithLabelValues("completed")); got != 0 {
		t.Errorf("expected 0 completed, got %v", got)
	}
}

func TestObserveWebhook_NormalisesLabels(t *testing.T) {
	before := testutil.ToFloat64(webhookEventsTotal.WithLabelValues("subscription.charged", "processed"))
	ObserveWebhook(" Subscription.Charged ", "PROCESSED", 10*time.Millisecond)
	after := testutil.ToFloat64(webhookEventsTotal.WithLabelValues("subscription.charged", "processed"))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, grew by %v", after-before)
	}
}

func TestObserveGatewayCall_Result(t *testing.T) {
	ObserveGatewayCall("sandbox", "create_order", errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("sandbox", "create_order", "error")); got < 1 {
		t.Errorf("expected an error call recorded, got %v", got)
	}
}

func TestMustRegister_Idempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}
