package repository

import (
	"context"
	"time"

	"lms-billing/internal/domain/model"
)

// EntitlementRepository stores at most one entitlement per (user, course).
type EntitlementRepository interface {
	// Upsert writes expiresAt and resets subscribed_at to now.
	Upsert(ctx context.Context, tx Tx, userID, courseID string, expiresAt, now time.Time) error
	Delete(ctx context.Context, tx Tx, userID, courseID string) error
	Find(ctx context.Context, tx Tx, userID, courseID string) (*model.Entitlement, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Entitlement, error)
}
