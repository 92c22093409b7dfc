package repository

import (
	"context"

	"lms-billing/internal/domain/model"
)

// PaymentRepository is the append-only receipt log.
type PaymentRepository interface {
	// Append stores p unless its gateway payment id is already recorded.
	// inserted is false for a replay.
	Append(ctx context.Context, tx Tx, p *model.Payment) (inserted bool, err error)
	FindByGatewayPaymentID(ctx context.Context, tx Tx, gatewayPaymentID string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.PaymentRecord, error)
	ListAll(ctx context.Context, tx Tx, limit, offset int) ([]*model.PaymentRecord, error)
	// SumByPeriod totals minor units paid since the start of week|month|year.
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
