package repository

import (
	"context"

	"lms-billing/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	// SetGatewayCustomerID caches the gateway's customer id on the user.
	SetGatewayCustomerID(ctx context.Context, tx Tx, userID, customerID string) error
}
