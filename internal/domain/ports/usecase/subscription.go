package usecase

import (
	"context"
)

// ExpirySweeper is the slice of subscription management background workers
// depend on.
type ExpirySweeper interface {
	ExpireDue(ctx context.Context) (int, error)
	RefreshStatusGauges(ctx context.Context) error
}
