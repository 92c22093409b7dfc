package adapter

import (
	"context"
	"errors"
	"time"
)

// ErrCustomerExists is returned by CreateCustomer when the gateway already
// holds a customer for the email.
var ErrCustomerExists = errors.New("gateway customer already exists")

type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

type PlanPeriod string

const (
	PlanPeriodMonthly PlanPeriod = "monthly"
)

type PlanRequest struct {
	Period      PlanPeriod
	Interval    int
	Name        string
	AmountMinor int64
	Currency    string
	Description string
}

type Plan struct {
	ID          string
	Period      PlanPeriod
	Interval    int
	Name        string
	AmountMinor int64
	Currency    string
}

type RecurringRequest struct {
	PlanID         string
	TotalCount     int
	CustomerID     string
	CustomerNotify bool
	Notes          map[string]string
}

type RecurringSubscription struct {
	ID               string
	PlanID           string
	Status           string // created | authenticated | active | completed | ...
	TotalCount       int
	PaidCount        int
	CurrentPeriodEnd *time.Time
	ShortURL         string
}

type Customer struct {
	ID    string
	Name  string
	Email string
}

// PaymentGateway is the hex port for the card/UPI provider. Implementations
// return *domain.GatewayError (or any error) on failure; callers bound each
// call with a timeout.
type PaymentGateway interface {
	Name() string
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error)
	CreatePlan(ctx context.Context, req PlanRequest) (Plan, error)
	// FetchPlan returns (nil, nil) when the plan does not exist.
	FetchPlan(ctx context.Context, id string) (*Plan, error)
	CreateRecurringSubscription(ctx context.Context, req RecurringRequest) (RecurringSubscription, error)
	CancelRecurringSubscription(ctx context.Context, id string) error
	CreateCustomer(ctx context.Context, name, email string) (Customer, error)
	// FindCustomerByEmail returns (nil, nil) when no customer matches.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
}
