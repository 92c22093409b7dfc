package model

import "time"

// LifetimeExpiry stands in for "never expires" so every access check is a
// plain time comparison.
var LifetimeExpiry = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// LifetimeThresholdDays: a verified one-time purchase longer than this is
// treated as lifetime access.
const LifetimeThresholdDays = 5000

// RenewalPeriod extends access after each EMI instalment past the first.
const RenewalPeriod = 30 * 24 * time.Hour

type EntitlementStatus string

const (
	EntitlementActive  EntitlementStatus = "active"
	EntitlementExpired EntitlementStatus = "expired"
)

// Entitlement is the single source of truth for "may this user open this
// course right now". There is at most one per (user, course).
type Entitlement struct {
	UserID       string
	CourseID     string
	SubscribedAt time.Time
	ExpiresAt    time.Time
}

// IsActive reports whether access is still valid at now.
func (e *Entitlement) IsActive(now time.Time) bool {
	return e != nil && e.ExpiresAt.After(now)
}

func (e *Entitlement) Status(now time.Time) EntitlementStatus {
	if e.IsActive(now) {
		return EntitlementActive
	}
	return EntitlementExpired
}

func (e *Entitlement) IsLifetime() bool {
	return e != nil && !e.ExpiresAt.Before(LifetimeExpiry)
}

// AddDays adds whole calendar days to t. Day counts past the time.Duration
// range still land in the future.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// PurchaseExpiry is the expiry granted by a verified one-time payment made at
// paidAt: paidAt+days, or LifetimeExpiry above LifetimeThresholdDays.
func PurchaseExpiry(paidAt time.Time, days int) time.Time {
	if days > LifetimeThresholdDays {
		return LifetimeExpiry
	}
	return AddDays(paidAt, days)
}

// RenewalExpiry extends current by RenewalPeriod, counting from now when
// current already lapsed.
func RenewalExpiry(current, now time.Time) time.Time {
	base := current
	if base.Before(now) {
		base = now
	}
	return base.Add(RenewalPeriod)
}

// EntitlementView is what a student sees on the status page.
type EntitlementView struct {
	CourseID    string            `json:"courseId"`
	CourseTitle string            `json:"courseTitle"`
	Status      EntitlementStatus `json:"status"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	Lifetime    bool              `json:"lifetime"`
}
