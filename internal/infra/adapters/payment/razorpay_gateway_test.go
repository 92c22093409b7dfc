//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/ports/adapter"
)

func newTestRazorpay(t *testing.T, h http.HandlerFunc) *RazorpayGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewRazorpayGateway("rzp_test_key", "secret", srv.URL, time.Second)
	require.NoError(t, err)
	return g
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	g := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 120000, body["amount"])
		assert.Equal(t, "rcpt_1", body["receipt"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_1", "amount": 120000, "currency": "INR", "receipt": "rcpt_1", "status": "created",
		})
	})

	o, err := g.CreateOrder(context.Background(), 120000, "INR", "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", o.ID)
	assert.Equal(t, int64(120000), o.AmountMinor)
}

func TestRazorpayGateway_ErrorDescription(t *testing.T) {
	g := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`))
	})

	_, err := g.CreateOrder(context.Background(), 10, "INR", "rcpt_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPaymentGateway))

	var ge *domain.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "The amount must be atleast INR 1.00", ge.Description)
}

func TestRazorpayGateway_FetchPlan(t *testing.T) {
	g := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/plans/plan_missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"description":"The id provided does not exist"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"plan_1","period":"monthly","interval":1,"item":{"name":"Go - EMI","amount":200000,"currency":"INR"}}`))
	})

	p, err := g.FetchPlan(context.Background(), "plan_1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(200000), p.AmountMinor)
	assert.Equal(t, adapter.PlanPeriodMonthly, p.Period)

	p, err = g.FetchPlan(context.Background(), "plan_missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRazorpayGateway_CreateRecurringSubscription(t *testing.T) {
	g := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "plan_1", body["plan_id"])
		assert.EqualValues(t, 6, body["total_count"])
		assert.EqualValues(t, 1, body["customer_notify"])
		_, _ = w.Write([]byte(`{"id":"sub_1","plan_id":"plan_1","status":"created","total_count":6,"paid_count":0,"current_end":1735689600,"short_url":"https://rzp.io/i/abc"}`))
	})

	s, err := g.CreateRecurringSubscription(context.Background(), adapter.RecurringRequest{PlanID: "plan_1", TotalCount: 6, CustomerNotify: true})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", s.ID)
	require.NotNil(t, s.CurrentPeriodEnd)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *s.CurrentPeriodEnd)
}

func TestRazorpayGateway_Customers(t *testing.T) {
	g := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"description":"Customer already exists for the merchant"}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"count":2,"items":[{"id":"cust_a","email":"a@example.com"},{"id":"cust_b","email":"B@example.com"}]}`))
		}
	})

	_, err := g.CreateCustomer(context.Background(), "B", "b@example.com")
	assert.ErrorIs(t, err, adapter.ErrCustomerExists)

	c, err := g.FindCustomerByEmail(context.Background(), "b@example.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "cust_b", c.ID)

	c, err = g.FindCustomerByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, c)
}
