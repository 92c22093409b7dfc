package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*Instrumented)(nil)

// Instrumented bounds every gateway call with a timeout and records
// latency and outcome per operation.
type Instrumented struct {
	inner   adapter.PaymentGateway
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewInstrumented(inner adapter.PaymentGateway, timeout time.Duration, logger *zerolog.Logger) *Instrumented {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	l := logger.With().Str("component", "gateway").Str("provider", inner.Name()).Logger()
	return &Instrumented{inner: inner, timeout: timeout, logger: &l}
}

func (g *Instrumented) Name() string { return g.inner.Name() }

func (g *Instrumented) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveGatewayCall(g.inner.Name(), op, err, time.Since(start))
	if err != nil {
		g.logger.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("gateway call failed")
	}
	return err
}

func (g *Instrumented) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (o adapter.Order, err error) {
	err = g.call(ctx, "create_order", func(ctx context.Context) error {
		o, err = g.inner.CreateOrder(ctx, amountMinor, currency, receipt)
		return err
	})
	return o, err
}

func (g *Instrumented) CreatePlan(ctx context.Context, req adapter.PlanRequest) (p adapter.Plan, err error) {
	err = g.call(ctx, "create_plan", func(ctx context.Context) error {
		p, err = g.inner.CreatePlan(ctx, req)
		return err
	})
	return p, err
}

func (g *Instrumented) FetchPlan(ctx context.Context, id string) (p *adapter.Plan, err error) {
	err = g.call(ctx, "fetch_plan", func(ctx context.Context) error {
		p, err = g.inner.FetchPlan(ctx, id)
		return err
	})
	return p, err
}

func (g *Instrumented) CreateRecurringSubscription(ctx context.Context, req adapter.RecurringRequest) (s adapter.RecurringSubscription, err error) {
	err = g.call(ctx, "create_subscription", func(ctx context.Context) error {
		s, err = g.inner.CreateRecurringSubscription(ctx, req)
		return err
	})
	return s, err
}

func (g *Instrumented) CancelRecurringSubscription(ctx context.Context, id string) error {
	return g.call(ctx, "cancel_subscription", func(ctx context.Context) error {
		return g.inner.CancelRecurringSubscription(ctx, id)
	})
}

func (g *Instrumented) CreateCustomer(ctx context.Context, name, email string) (c adapter.Customer, err error) {
	err = g.call(ctx, "create_customer", func(ctx context.Context) error {
		c, err = g.inner.CreateCustomer(ctx, name, email)
		return err
	})
	return c, err
}

func (g *Instrumented) FindCustomerByEmail(ctx context.Context, email string) (c *adapter.Customer, err error) {
	err = g.call(ctx, "find_customer", func(ctx context.Context) error {
		c, err = g.inner.FindCustomerByEmail(ctx, email)
		return err
	})
	return c, err
}
