//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/infra/security"
	"lms-billing/internal/usecase"
)

const (
	testKeySecret     = "key_secret_test"
	testWebhookSecret = "whsec_test"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// billingDeps wires every use case over the in-memory repositories.
type billingDeps struct {
	clock    *fixedClock
	users    *MockUserRepo
	courses  *MockCourseRepo
	ents     *MockEntitlementRepo
	subs     *MockSubscriptionRepo
	payments *MockPaymentRepo
	tm       *MockTxManager
	gateway  *MockPaymentGateway
	notifier *MockNotifier
	locker   *MockLocker

	checkout *security.Signer
	hooks    *security.Signer

	entitlements usecase.EntitlementUseCase
	enrollment   usecase.EnrollmentUseCase
	payment      usecase.PaymentUseCase
	webhook      usecase.WebhookUseCase
	subscription usecase.SubscriptionUseCase
}

func newBillingDeps(t *testing.T) *billingDeps {
	t.Helper()
	d := &billingDeps{
		clock:    newClock(testNow),
		users:    NewMockUserRepo(),
		courses:  NewMockCourseRepo(),
		ents:     NewMockEntitlementRepo(),
		subs:     NewMockSubscriptionRepo(),
		payments: NewMockPaymentRepo(),
		tm:       NewMockTxManager(),
		gateway:  &MockPaymentGateway{},
		notifier: &MockNotifier{},
		locker:   NewMockLocker(),
	}
	var err error
	if d.checkout, err = security.NewSigner(testKeySecret); err != nil {
		t.Fatalf("signer: %v", err)
	}
	if d.hooks, err = security.NewSigner(testWebhookSecret); err != nil {
		t.Fatalf("signer: %v", err)
	}

	logger := newTestLogger()
	clock := usecase.WithClock(d.clock.Now)
	d.entitlements = usecase.NewEntitlementUseCase(d.ents, d.courses, logger, clock)
	d.enrollment = usecase.NewEnrollmentUseCase(d.users, d.courses, d.subs, d.entitlements, d.gateway, d.locker, d.notifier,
		usecase.EnrollmentConfig{KeyID: "rzp_test_key", Currency: "INR", LockTTL: time.Minute}, logger, clock)
	d.payment = usecase.NewPaymentUseCase(d.tm, d.users, d.courses, d.subs, d.payments, d.entitlements, d.checkout, d.notifier, logger, clock)
	d.webhook = usecase.NewWebhookUseCase(d.tm, d.users, d.courses, d.subs, d.payments, d.entitlements, d.hooks, d.notifier, logger, clock)
	d.subscription = usecase.NewSubscriptionUseCase(d.tm, d.users, d.courses, d.subs, d.entitlements, d.gateway, d.notifier, logger, clock)

	d.users.Save(context.Background(), nil, &model.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Role: model.RoleStudent})
	d.users.Save(context.Background(), nil, &model.User{ID: "u2", Email: "alan@example.com", FirstName: "Alan", Role: model.RoleStudent})
	return d
}

func (d *billingDeps) addCourse(id string, price float64, days int) *model.Course {
	c := &model.Course{ID: id, Title: "Course " + id, Price: price, DurationInDays: days, AllowFullPayment: true, AllowEMI: true}
	d.courses.Save(context.Background(), nil, c)
	return c
}

// sign returns the checkout signature for order|payment.
func (d *billingDeps) sign(orderID, paymentID string) string {
	return d.checkout.Sign(security.CheckoutPayload(orderID, paymentID))
}

func (d *billingDeps) entitlement(t *testing.T, userID, courseID string) *model.Entitlement {
	t.Helper()
	e, err := d.ents.Find(context.Background(), nil, userID, courseID)
	if err != nil {
		return nil
	}
	return e
}

// chargeEvent builds a signed subscription.charged delivery.
func (d *billingDeps) chargeEvent(t *testing.T, recurringRef, paymentID string, amountMinor int64, chargeAt time.Time) ([]byte, string) {
	t.Helper()
	body := map[string]any{
		"event": model.EventSubscriptionCharged,
		"payload": map[string]any{
			"subscription": map[string]any{"entity": map[string]any{
				"id": recurringRef, "status": "active", "charge_at": chargeAt.Unix(),
			}},
			"payment": map[string]any{"entity": map[string]any{
				"id": paymentID, "amount": amountMinor, "currency": "INR", "status": "captured", "method": "card",
			}},
		},
	}
	return d.signedEvent(t, body)
}

func (d *billingDeps) lifecycleEvent(t *testing.T, event, recurringRef string) ([]byte, string) {
	t.Helper()
	body := map[string]any{
		"event": event,
		"payload": map[string]any{
			"subscription": map[string]any{"entity": map[string]any{"id": recurringRef, "status": "halted"}},
		},
	}
	return d.signedEvent(t, body)
}

func (d *billingDeps) signedEvent(t *testing.T, body map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw, d.hooks.Sign(raw)
}

// seedEMI stores a pending recurring subscription as EMI initiation would.
func (d *billingDeps) seedEMI(userID, courseID, recurringRef string, installments int) *model.Subscription {
	s, _ := model.NewSubscription(userID, courseID, model.SubscriptionTypeRecurring, model.SubscriptionStatusPending, 1200, "INR")
	s.RecurringRef = recurringRef
	s.PlanRef = "plan_1"
	s.TotalCount = installments
	s.CreatedAt = testNow
	d.subs.Put(s)
	return s
}
