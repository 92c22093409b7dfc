package model

import (
	"math"
	"strings"
	"time"
)

// DefaultCourseDurationDays applies when a course does not set a duration.
const DefaultCourseDurationDays = 365

// EMIPlanTemplate is an instalment option an admin attached to a course.
type EMIPlanTemplate struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	PlanRef              string  `json:"plan_ref,omitempty"`
	Installments         int     `json:"installments"`
	InterestPercent      float64 `json:"interest_percent"`
	PerInstallmentAmount float64 `json:"per_installment_amount"`
	TotalAmount          float64 `json:"total_amount"`
}

// Course is read-only to billing: price, duration and EMI templates.
type Course struct {
	ID               string
	Title            string
	Price            float64 // INR, decimal
	DurationInDays   int
	AllowFullPayment bool
	AllowEMI         bool
	EMIPlans         []EMIPlanTemplate
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (c *Course) IsZero() bool { return c == nil || c.ID == "" }

// IsFree is true only for a price of exactly zero.
func (c *Course) IsFree() bool { return c.Price == 0 }

// Duration returns the access duration in days, defaulting to 365.
func (c *Course) Duration() int {
	if c.DurationInDays <= 0 {
		return DefaultCourseDurationDays
	}
	return c.DurationInDays
}

// PriceMinor converts the decimal price into paise.
func (c *Course) PriceMinor() int64 { return ToMinor(c.Price) }

// FindEMIPlan matches a template by id first, then case-insensitively by name.
func (c *Course) FindEMIPlan(ref string) *EMIPlanTemplate {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	for i := range c.EMIPlans {
		if c.EMIPlans[i].ID == ref {
			return &c.EMIPlans[i]
		}
	}
	for i := range c.EMIPlans {
		if strings.EqualFold(c.EMIPlans[i].Name, ref) {
			return &c.EMIPlans[i]
		}
	}
	return nil
}

// ToMinor converts a decimal INR amount to paise, rounding half away from zero.
func ToMinor(amount float64) int64 { return int64(math.Round(amount * 100)) }

// FromMinor converts paise back to a decimal INR amount.
func FromMinor(minor int64) float64 { return float64(minor) / 100 }
