package model

import (
	"time"

	"lms-billing/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionType string

const (
	SubscriptionTypeFree      SubscriptionType = "free"
	SubscriptionTypeOneTime   SubscriptionType = "one-time"
	SubscriptionTypeRecurring SubscriptionType = "subscription"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCompleted SubscriptionStatus = "completed"
)

// AllSubscriptionStatuses is used to publish zeroed gauges.
var AllSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
	SubscriptionStatusCompleted,
}

// IsTerminal reports statuses that no further event may leave.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired || s == SubscriptionStatusCompleted
}

// PaymentHistoryEntry is the per-subscription display copy of a receipt.
// The payments table stays authoritative.
type PaymentHistoryEntry struct {
	PaymentID string         `json:"payment_id"`
	OrderID   string         `json:"order_id,omitempty"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency"`
	Status    string         `json:"status"`
	PaidAt    time.Time      `json:"paidAt"`
	Raw       map[string]any `json:"meta,omitempty"`
}

// EMISnapshot freezes the plan terms the student agreed to.
type EMISnapshot struct {
	PlanName            string  `json:"plan_name"`
	Installments        int     `json:"installments"`
	PerInstallmentMinor int64   `json:"per_installment_minor"`
	TotalAmount         float64 `json:"total_amount"`
	InterestPercent     float64 `json:"interest_percent"`
	TemplateID          string  `json:"template_id,omitempty"`
}

// Subscription records one enrollment attempt and its payment lifecycle.
// Rows are never deleted.
type Subscription struct {
	ID             string                `json:"id"`
	UserID         string                `json:"userId"`
	CourseID       string                `json:"courseId"`
	Type           SubscriptionType      `json:"type"`
	Status         SubscriptionStatus    `json:"status"`
	Amount         float64               `json:"amount"`
	Currency       string                `json:"currency"`
	OrderRef       string                `json:"orderId,omitempty"`
	RecurringRef   string                `json:"subscriptionId,omitempty"`
	PlanRef        string                `json:"planId,omitempty"`
	EMI            *EMISnapshot          `json:"emi,omitempty"`
	TotalCount     int                   `json:"totalCount"`
	PaidCount      int                   `json:"paidCount"`
	NextPaymentAt  *time.Time            `json:"nextPaymentAt,omitempty"`
	ExpiresAt      *time.Time            `json:"expiresAt,omitempty"`
	LifetimeAccess bool                  `json:"lifetimeAccess"`
	PaymentHistory []PaymentHistoryEntry `json:"paymentHistory"`
	Metadata       map[string]any        `json:"metadata,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func NewSubscription(userID, courseID string, typ SubscriptionType, status SubscriptionStatus, amount float64, currency string) (*Subscription, error) {
	if userID == "" || courseID == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case SubscriptionTypeFree, SubscriptionTypeOneTime, SubscriptionTypeRecurring:
	default:
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	now := time.Now().UTC()
	return &Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Type:      typ,
		Status:    status,
		Amount:    amount,
		Currency:  currency,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Subscription) IsZero() bool { return s == nil || s.ID == "" }

// HasPayment reports whether a history entry for paymentID already exists.
func (s *Subscription) HasPayment(paymentID string) bool {
	for _, h := range s.PaymentHistory {
		if h.PaymentID == paymentID {
			return true
		}
	}
	return false
}

// AppendPayment adds a history entry unless the payment is already recorded.
func (s *Subscription) AppendPayment(e PaymentHistoryEntry) bool {
	if e.PaymentID != "" && s.HasPayment(e.PaymentID) {
		return false
	}
	s.PaymentHistory = append(s.PaymentHistory, e)
	return true
}

// CanCancel reports whether cancellation is a legal transition. An already
// cancelled subscription is accepted so cancel stays idempotent.
func (s *Subscription) CanCancel() bool {
	switch s.Status {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusCancelled:
		return true
	}
	return false
}

// InstallmentsComplete is true once every scheduled charge has been paid.
func (s *Subscription) InstallmentsComplete() bool {
	return s.TotalCount > 0 && s.PaidCount >= s.TotalCount
}
