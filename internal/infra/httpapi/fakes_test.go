//go:build !integration

package httpapi

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/config"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/usecase"
)

type fakeEnrollment struct {
	got      model.EnrollRequest
	EnrollFn func(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error)
}

func (f *fakeEnrollment) Enroll(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error) {
	f.got = req
	if f.EnrollFn != nil {
		return f.EnrollFn(ctx, req)
	}
	return &model.EnrollResult{Mode: model.SubscriptionTypeOneTime, OrderID: "order_1"}, nil
}

type fakePayments struct {
	got      model.VerifyRequest
	VerifyFn func(ctx context.Context, req model.VerifyRequest) (*model.VerifyResult, error)
}

func (f *fakePayments) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResult, error) {
	f.got = req
	if f.VerifyFn != nil {
		return f.VerifyFn(ctx, req)
	}
	return &model.VerifyResult{ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakePayments) History(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	return []*model.PaymentRecord{{Payment: model.Payment{UserID: userID, GatewayPaymentID: "pay_1"}}}, nil
}

func (f *fakePayments) ListAll(ctx context.Context, limit, offset int) ([]*model.PaymentRecord, error) {
	return nil, nil
}

type fakeWebhooks struct {
	raw      []byte
	sig      string
	HandleFn func(ctx context.Context, raw []byte, sig string) (model.WebhookOutcome, error)
}

func (f *fakeWebhooks) Handle(ctx context.Context, raw []byte, sig string) (model.WebhookOutcome, error) {
	f.raw, f.sig = raw, sig
	if f.HandleFn != nil {
		return f.HandleFn(ctx, raw, sig)
	}
	return model.WebhookProcessed, nil
}

type fakeSubscriptions struct {
	CancelFn func(ctx context.Context, actorID string, role model.Role, id string) (*model.Subscription, error)
}

func (f *fakeSubscriptions) Cancel(ctx context.Context, actorID string, role model.Role, id string) (*model.Subscription, error) {
	if f.CancelFn != nil {
		return f.CancelFn(ctx, actorID, role, id)
	}
	return &model.Subscription{ID: id, Status: model.SubscriptionStatusCancelled}, nil
}

func (f *fakeSubscriptions) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return []*model.Subscription{{ID: "s1", UserID: userID}}, nil
}

func (f *fakeSubscriptions) ListAll(ctx context.Context, limit, offset int) ([]*model.Subscription, error) {
	return nil, nil
}

func (f *fakeSubscriptions) ExpireDue(ctx context.Context) (int, error)    { return 0, nil }
func (f *fakeSubscriptions) RefreshStatusGauges(ctx context.Context) error { return nil }

type fakeEntitlements struct {
	active map[string]bool
}

func (f *fakeEntitlements) GrantOrExtend(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt time.Time) error {
	return nil
}

func (f *fakeEntitlements) Revoke(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	return nil
}

func (f *fakeEntitlements) Current(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Entitlement, error) {
	return nil, nil
}

func (f *fakeEntitlements) IsActive(ctx context.Context, userID, courseID string, at time.Time) (bool, error) {
	return f.active[userID+"|"+courseID], nil
}

func (f *fakeEntitlements) Status(ctx context.Context, userID string) ([]model.EntitlementView, error) {
	return nil, nil
}

type fakeStats struct{}

func (fakeStats) Revenue(ctx context.Context) (model.Revenue, error) {
	return model.Revenue{Week: 1, Month: 2, Year: 3}, nil
}

func (fakeStats) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{model.SubscriptionStatusActive: 1}, nil
}

func (s fakeStats) Overview(ctx context.Context) (*usecase.AdminStats, error) {
	rev, _ := s.Revenue(ctx)
	counts, _ := s.CountByStatus(ctx)
	return &usecase.AdminStats{Revenue: rev, Subscriptions: counts}, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

var (
	_ usecase.EnrollmentUseCase   = (*fakeEnrollment)(nil)
	_ usecase.PaymentUseCase      = (*fakePayments)(nil)
	_ usecase.WebhookUseCase      = (*fakeWebhooks)(nil)
	_ usecase.SubscriptionUseCase = (*fakeSubscriptions)(nil)
	_ usecase.EntitlementUseCase  = (*fakeEntitlements)(nil)
	_ usecase.StatsUseCase        = fakeStats{}
)

const testJWTSecret = "test-jwt-secret"

type testAPI struct {
	enrollment    *fakeEnrollment
	payments      *fakePayments
	webhooks      *fakeWebhooks
	subscriptions *fakeSubscriptions
	entitlements  *fakeEntitlements
	limiter       *fakeLimiter
	auth          *AuthManager
	deps          Deps
}

func newTestAPI() *testAPI {
	a := &testAPI{
		enrollment:    &fakeEnrollment{},
		payments:      &fakePayments{},
		webhooks:      &fakeWebhooks{},
		subscriptions: &fakeSubscriptions{},
		entitlements:  &fakeEntitlements{active: map[string]bool{}},
		limiter:       &fakeLimiter{allow: true},
		auth:          NewAuthManager(testJWTSecret, time.Minute),
	}
	a.deps = Deps{
		Enrollment:    a.enrollment,
		Payments:      a.payments,
		Webhooks:      a.webhooks,
		Subscriptions: a.subscriptions,
		Entitlements:  a.entitlements,
		Stats:         fakeStats{},
		Auth:          a.auth,
		Limiter:       a.limiter,
	}
	return a
}

func (a *testAPI) server() *Server {
	logger := zerolog.New(io.Discard)
	cfg := config.HTTPConfig{RequestTimeout: 5 * time.Second, RateLimit: 10, RateWindow: time.Minute}
	return NewServer(a.deps, cfg, "X-Razorpay-Signature", &logger)
}
