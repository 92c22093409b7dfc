package model

import "time"

const DefaultCurrency = "INR"

type PaymentSource string

const (
	PaymentSourceVerify  PaymentSource = "verify"  // client-submitted checkout signature
	PaymentSourceWebhook PaymentSource = "webhook" // gateway subscription.charged event
)

// Payment is an append-only receipt. GatewayPaymentID is unique, which is
// what makes verification and webhook replays safe.
type Payment struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	CourseID         string        `json:"courseId"`
	SubscriptionID   string        `json:"subscriptionId,omitempty"`
	OrderRef         string        `json:"orderId,omitempty"`
	GatewayPaymentID string        `json:"paymentId"`
	Amount           float64       `json:"amount"` // INR, decimal
	AmountMinor      int64         `json:"amountMinor"`
	Currency         string        `json:"currency"`
	Source           PaymentSource `json:"source"`
	PaidAt           time.Time     `json:"paidAt"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// PaymentRecord joins a receipt with display fields for history listings.
type PaymentRecord struct {
	Payment
	CourseTitle  string `json:"courseTitle"`
	StudentEmail string `json:"studentEmail,omitempty"`
}

// Revenue totals in minor units.
type Revenue struct {
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
	Year  int64 `json:"year"`
}
