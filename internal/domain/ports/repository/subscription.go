package repository

import (
	"context"
	"time"

	"lms-billing/internal/domain/model"
)

type SubscriptionRepository interface {
	// Save inserts or fully rewrites a subscription row.
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindByRecurringRef locks the row when called inside a transaction.
	FindByRecurringRef(ctx context.Context, tx Tx, recurringRef string) (*model.Subscription, error)
	// FindOneTimeByOrder matches (user, course, one-time, order ref).
	FindOneTimeByOrder(ctx context.Context, tx Tx, userID, courseID, orderRef string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	ListAll(ctx context.Context, tx Tx, limit, offset int) ([]*model.Subscription, error)
	// ExpireDue marks active free/one-time rows past expiry as expired.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
