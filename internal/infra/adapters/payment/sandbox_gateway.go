package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SandboxGateway)(nil)

// SandboxGateway is an in-memory gateway for local runs and tests.
type SandboxGateway struct {
	mu        sync.Mutex
	now       func() time.Time
	orders    map[string]adapter.Order
	plans     map[string]adapter.Plan
	subs      map[string]adapter.RecurringSubscription
	customers map[string]adapter.Customer // email -> customer
	failures  map[string]string           // op -> description
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{
		now:       time.Now,
		orders:    make(map[string]adapter.Order),
		plans:     make(map[string]adapter.Plan),
		subs:      make(map[string]adapter.RecurringSubscription),
		customers: make(map[string]adapter.Customer),
		failures:  make(map[string]string),
	}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) id(prefix string) string {
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(g.now()), rand.Reader).String()
}

// FailNext makes the next call of op fail with the given description.
func (g *SandboxGateway) FailNext(op, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = description
}

func (g *SandboxGateway) takeFailure(op string) error {
	desc, ok := g.failures[op]
	if !ok {
		return nil
	}
	delete(g.failures, op)
	return &domain.GatewayError{Op: op, Description: desc}
}

func (g *SandboxGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (adapter.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_order"); err != nil {
		return adapter.Order{}, err
	}
	if amountMinor <= 0 {
		return adapter.Order{}, &domain.GatewayError{Op: "create_order", Description: "amount must be at least 100 paise"}
	}
	o := adapter.Order{ID: g.id("order"), AmountMinor: amountMinor, Currency: currency, Receipt: receipt, Status: "created"}
	g.orders[o.ID] = o
	return o, nil
}

func (g *SandboxGateway) CreatePlan(ctx context.Context, req adapter.PlanRequest) (adapter.Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_plan"); err != nil {
		return adapter.Plan{}, err
	}
	p := adapter.Plan{
		ID:          g.id("plan"),
		Period:      req.Period,
		Interval:    req.Interval,
		Name:        req.Name,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	g.plans[p.ID] = p
	return p, nil
}

// AddPlan registers an existing plan, as if created on the dashboard.
func (g *SandboxGateway) AddPlan(p adapter.Plan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.plans[p.ID] = p
}

func (g *SandboxGateway) FetchPlan(ctx context.Context, id string) (*adapter.Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("fetch_plan"); err != nil {
		return nil, err
	}
	p, ok := g.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (g *SandboxGateway) CreateRecurringSubscription(ctx context.Context, req adapter.RecurringRequest) (adapter.RecurringSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_subscription"); err != nil {
		return adapter.RecurringSubscription{}, err
	}
	if _, ok := g.plans[req.PlanID]; !ok {
		return adapter.RecurringSubscription{}, &domain.GatewayError{Op: "create_subscription", Description: fmt.Sprintf("plan %s does not exist", req.PlanID)}
	}
	s := adapter.RecurringSubscription{
		ID:         g.id("sub"),
		PlanID:     req.PlanID,
		Status:     "created",
		TotalCount: req.TotalCount,
	}
	s.ShortURL = "https://sandbox.test/subscriptions/" + s.ID
	g.subs[s.ID] = s
	return s, nil
}

func (g *SandboxGateway) CancelRecurringSubscription(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("cancel_subscription"); err != nil {
		return err
	}
	s, ok := g.subs[id]
	if !ok {
		return &domain.GatewayError{Op: "cancel_subscription", Description: "subscription not found"}
	}
	s.Status = "cancelled"
	g.subs[id] = s
	return nil
}

// Subscription returns the stored recurring subscription, for assertions.
func (g *SandboxGateway) Subscription(id string) (adapter.RecurringSubscription, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[id]
	return s, ok
}

func (g *SandboxGateway) CreateCustomer(ctx context.Context, name, email string) (adapter.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_customer"); err != nil {
		return adapter.Customer{}, err
	}
	key := strings.ToLower(email)
	if _, ok := g.customers[key]; ok {
		return adapter.Customer{}, adapter.ErrCustomerExists
	}
	c := adapter.Customer{ID: g.id("cust"), Name: name, Email: email}
	g.customers[key] = c
	return c, nil
}

func (g *SandboxGateway) FindCustomerByEmail(ctx context.Context, email string) (*adapter.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
