package model

import "encoding/json"

const (
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// WebhookEvent is the subset of the gateway envelope the reconciler reads.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Subscription *struct {
		Entity WebhookSubscription `json:"entity"`
	} `json:"subscription,omitempty"`
	Payment *struct {
		Entity WebhookPayment `json:"entity"`
	} `json:"payment,omitempty"`
}

type WebhookSubscription struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	PaidCount  int    `json:"paid_count"`
	TotalCount int    `json:"total_count"`
	ChargeAt   int64  `json:"charge_at"`
	CurrentEnd int64  `json:"current_end"`
	CustomerID string `json:"customer_id"`
}

type WebhookPayment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    int64           `json:"amount"` // paise
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Method    string          `json:"method"`
	CreatedAt int64           `json:"created_at"`
	Notes     json.RawMessage `json:"notes,omitempty"`
}

func (e *WebhookEvent) SubscriptionEntity() *WebhookSubscription {
	if e.Payload.Subscription == nil {
		return nil
	}
	return &e.Payload.Subscription.Entity
}

func (e *WebhookEvent) PaymentEntity() *WebhookPayment {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookUnhandled WebhookOutcome = "unhandled"
	WebhookError     WebhookOutcome = "error"
)
