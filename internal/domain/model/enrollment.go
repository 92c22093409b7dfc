package model

import "time"

// EnrollRequest is one of FreeEnroll, OneTimeInitiate or EmiInitiate.
// The unexported marker keeps the set closed.
type EnrollRequest interface {
	enrollRequest()
	Target() (userID, courseID string)
}

type FreeEnroll struct {
	UserID   string
	CourseID string
}

type OneTimeInitiate struct {
	UserID   string
	CourseID string
}

// EmiInitiate asks for a recurring instalment subscription. PlanTemplate
// selects a course template by id or name; PlanRef forces a gateway plan;
// Installments applies when neither resolves (default 6).
type EmiInitiate struct {
	UserID       string
	CourseID     string
	PlanTemplate string
	PlanRef      string
	Installments int
}

func (FreeEnroll) enrollRequest()      {}
func (OneTimeInitiate) enrollRequest() {}
func (EmiInitiate) enrollRequest()     {}

func (r FreeEnroll) Target() (string, string)      { return r.UserID, r.CourseID }
func (r OneTimeInitiate) Target() (string, string) { return r.UserID, r.CourseID }
func (r EmiInitiate) Target() (string, string)     { return r.UserID, r.CourseID }

// DefaultInstallments applies to ad-hoc EMI plans.
const DefaultInstallments = 6

// MaxInstallments caps ad-hoc EMI plans.
const MaxInstallments = 60

// EnrollResult is returned by every enrollment path; only the fields of the
// path taken are set.
type EnrollResult struct {
	Mode         SubscriptionType `json:"mode"`
	Subscription *Subscription    `json:"subscription,omitempty"`

	// free
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// one-time checkout
	OrderID     string `json:"orderId,omitempty"`
	AmountMinor int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	CourseTitle string `json:"courseTitle,omitempty"`
	KeyID       string `json:"key,omitempty"`

	// EMI
	RecurringRef        string  `json:"subscriptionId,omitempty"`
	PlanRef             string  `json:"planId,omitempty"`
	ShortURL            string  `json:"shortUrl,omitempty"`
	Installments        int     `json:"installments,omitempty"`
	PerInstallmentMinor int64   `json:"perInstallmentAmount,omitempty"`
	TotalAmount         float64 `json:"totalAmount,omitempty"`
}

// VerifyRequest carries the gateway checkout callback fields.
type VerifyRequest struct {
	UserID     string
	CourseID   string
	OrderRef   string
	PaymentRef string
	Signature  string
}

// VerifyResult is returned after a successful one-time verification.
type VerifyResult struct {
	Subscription *Subscription `json:"subscription"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Lifetime     bool          `json:"lifetime"`
	Duplicate    bool          `json:"duplicate"`
}
