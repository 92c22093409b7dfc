//go:build !integration

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
)

func (a *testAPI) do(t *testing.T, method, path, body string, role model.Role, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if role != "" {
		tok, err := a.auth.Mint(userID, role, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.server().Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuth(t *testing.T) {
	t.Run("no credentials -> 401", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodGet, "/api/subscription/status", "", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret -> 401", func(t *testing.T) {
		a := newTestAPI()
		other := NewAuthManager("other-secret", 0)
		tok, err := other.Mint("u1", model.RoleStudent, "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		a.server().Routes().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("student on admin route -> 403", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodGet, "/api/admin/stats", "", model.RoleStudent, "u1")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner on admin route -> 200", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodGet, "/api/admin/stats", "", model.RoleOwner, "boss")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Contains(t, body, "revenue")
	})

	t.Run("admin on student route -> 403", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodPost, "/api/payment/initiate", `{"courseId":"c1"}`, model.RoleAdmin, "a1")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrAlreadyEnrolled, http.StatusBadRequest},
		{domain.ErrAlreadyActive, http.StatusBadRequest},
		{domain.ErrInvalidSignature, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPaidCourse, http.StatusForbidden},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrEnrollmentInProgress, http.StatusConflict},
		{domain.NewGatewayError("create_order", errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w: save", domain.ErrPersistence), http.StatusInternalServerError},
		{domain.ErrMalformedPayload, http.StatusInternalServerError},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestEnrollmentRoutes(t *testing.T) {
	t.Run("free enroll uses the path course and caller", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodPost, "/api/courses/c9/enroll", "", model.RoleStudent, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, model.FreeEnroll{UserID: "u1", CourseID: "c9"}, a.enrollment.got)
	})

	t.Run("gateway failure -> 502 with description", func(t *testing.T) {
		a := newTestAPI()
		a.enrollment.EnrollFn = func(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error) {
			return nil, &domain.GatewayError{Op: "create_order", Description: "The amount must be atleast INR 1.00"}
		}
		rec := a.do(t, http.MethodPost, "/api/payment/initiate", `{"courseId":"c1"}`, model.RoleStudent, "u1")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "The amount must be atleast INR 1.00", decodeBody(t, rec)["description"])
	})

	t.Run("contention -> 409", func(t *testing.T) {
		a := newTestAPI()
		a.enrollment.EnrollFn = func(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error) {
			return nil, domain.ErrEnrollmentInProgress
		}
		rec := a.do(t, http.MethodPost, "/api/payment/create-subscription", `{"courseId":"c1"}`, model.RoleStudent, "u1")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.IsType(t, model.EmiInitiate{}, a.enrollment.got)
	})

	t.Run("missing course -> 400", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodPost, "/api/payment/initiate", `{}`, model.RoleStudent, "u1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json -> 400", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodPost, "/api/payment/initiate", `{"courseId":`, model.RoleStudent, "u1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInitiateRequestShapes(t *testing.T) {
	cases := []struct {
		name string
		req  initiateRequest
		want model.EnrollRequest
	}{
		{"default is one-time", initiateRequest{CourseID: "c1"}, model.OneTimeInitiate{UserID: "u1", CourseID: "c1"}},
		{"free type", initiateRequest{CourseID: "c1", Type: "free"}, model.FreeEnroll{UserID: "u1", CourseID: "c1"}},
		{"subscription type", initiateRequest{CourseID: "c1", Type: "subscription", Installments: 3}, model.EmiInitiate{UserID: "u1", CourseID: "c1", Installments: 3}},
		{"emi option", initiateRequest{CourseID: "c1", PaymentOption: "EMI", PlanTemplate: "tpl-6"}, model.EmiInitiate{UserID: "u1", CourseID: "c1", PlanTemplate: "tpl-6"}},
		{"plan id", initiateRequest{CourseID: "c1", PlanID: "plan_9"}, model.EmiInitiate{UserID: "u1", CourseID: "c1", PlanRef: "plan_9"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.req.toEnrollRequest("u1"))
		})
	}
}

func TestVerifyRoute(t *testing.T) {
	t.Run("maps gateway callback fields", func(t *testing.T) {
		a := newTestAPI()
		body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"abc","courseId":"c1"}`
		rec := a.do(t, http.MethodPost, "/api/payment/verify", body, model.RoleStudent, "u1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.VerifyRequest{UserID: "u1", CourseID: "c1", OrderRef: "order_1", PaymentRef: "pay_1", Signature: "abc"}, a.payments.got)
	})

	t.Run("bad signature -> 400", func(t *testing.T) {
		a := newTestAPI()
		a.payments.VerifyFn = func(ctx context.Context, req model.VerifyRequest) (*model.VerifyResult, error) {
			return nil, domain.ErrInvalidSignature
		}
		rec := a.do(t, http.MethodPost, "/api/payment/verify", `{}`, model.RoleStudent, "u1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhookRoute(t *testing.T) {
	payload := `{"event":"subscription.charged"}`

	t.Run("passes the raw body and signature header, no token needed", func(t *testing.T) {
		a := newTestAPI()
		req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(payload))
		req.Header.Set("X-Razorpay-Signature", "sig-1")
		rec := httptest.NewRecorder()
		a.server().Routes().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payload, string(a.webhooks.raw))
		assert.Equal(t, "sig-1", a.webhooks.sig)
		assert.Equal(t, "processed", decodeBody(t, rec)["status"])
	})

	t.Run("reconciliation errors are still acknowledged", func(t *testing.T) {
		a := newTestAPI()
		a.webhooks.HandleFn = func(ctx context.Context, raw []byte, sig string) (model.WebhookOutcome, error) {
			return model.WebhookError, nil
		}
		rec := a.do(t, http.MethodPost, "/api/payment/webhook", payload, "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid signature -> 400, malformed -> 500", func(t *testing.T) {
		a := newTestAPI()
		a.webhooks.HandleFn = func(ctx context.Context, raw []byte, sig string) (model.WebhookOutcome, error) {
			return model.WebhookError, domain.ErrInvalidSignature
		}
		assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/payment/webhook", payload, "", "").Code)

		a.webhooks.HandleFn = func(ctx context.Context, raw []byte, sig string) (model.WebhookOutcome, error) {
			return model.WebhookError, domain.ErrMalformedPayload
		}
		assert.Equal(t, http.StatusInternalServerError, a.do(t, http.MethodPost, "/api/payment/webhook", payload, "", "").Code)
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		a := newTestAPI()
		big := strings.Repeat("x", maxWebhookBody+1)
		rec := a.do(t, http.MethodPost, "/api/payment/webhook", big, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, a.webhooks.raw)
	})
}

func TestEntitlementRoute(t *testing.T) {
	t.Run("reports the caller's access", func(t *testing.T) {
		a := newTestAPI()
		a.entitlements.active["u1|c1"] = true
		rec := a.do(t, http.MethodGet, "/api/entitlements/c1", "", model.RoleStudent, "u1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["active"])
	})

	t.Run("students cannot query others", func(t *testing.T) {
		a := newTestAPI()
		rec := a.do(t, http.MethodGet, "/api/entitlements/c1?userId=u2", "", model.RoleStudent, "u1")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("staff may query any student", func(t *testing.T) {
		a := newTestAPI()
		a.entitlements.active["u2|c1"] = true
		rec := a.do(t, http.MethodGet, "/api/entitlements/c1?userId=u2", "", model.RoleAdmin, "a1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["active"])
	})
}

func TestCancelRoutes(t *testing.T) {
	t.Run("student cancel passes the caller role", func(t *testing.T) {
		a := newTestAPI()
		var gotRole model.Role
		a.subscriptions.CancelFn = func(ctx context.Context, actorID string, role model.Role, id string) (*model.Subscription, error) {
			gotRole = role
			return nil, domain.ErrForbidden
		}
		rec := a.do(t, http.MethodPost, "/api/subscriptions/s1/cancel", "", model.RoleStudent, "u1")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, model.RoleStudent, gotRole)
	})

	t.Run("completed -> 409", func(t *testing.T) {
		a := newTestAPI()
		a.subscriptions.CancelFn = func(ctx context.Context, actorID string, role model.Role, id string) (*model.Subscription, error) {
			return nil, domain.ErrInvalidTransition
		}
		rec := a.do(t, http.MethodPost, "/api/admin/subscriptions/s1/cancel", "", model.RoleAdmin, "a1")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("over the limit -> 429", func(t *testing.T) {
		a := newTestAPI()
		a.limiter.allow = false
		rec := a.do(t, http.MethodGet, "/api/payments/history", "", model.RoleStudent, "u1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		require.Len(t, a.limiter.keys, 1)
		assert.Contains(t, a.limiter.keys[0], "u1")
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		a := newTestAPI()
		a.limiter.err = errors.New("redis down")
		rec := a.do(t, http.MethodGet, "/api/payments/history", "", model.RoleStudent, "u1")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		a := newTestAPI()
		a.deps.Checks = map[string]HealthCheck{"db": func(context.Context) error { return nil }}
		rec := a.do(t, http.MethodGet, "/health", "", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("failing dependency -> 503", func(t *testing.T) {
		a := newTestAPI()
		a.deps.Checks = map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("refused") }}
		rec := a.do(t, http.MethodGet, "/health", "", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
	})
}

func TestRecover(t *testing.T) {
	a := newTestAPI()
	a.enrollment.EnrollFn = func(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error) {
		panic("boom")
	}
	rec := a.do(t, http.MethodPost, "/api/courses/c1/enroll", "", model.RoleStudent, "u1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
