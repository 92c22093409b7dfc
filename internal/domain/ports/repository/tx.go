package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept nil and fall back to the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. Repository
// calls made with the tx handed to fn take row locks (SELECT ... FOR UPDATE)
// where they read state they are about to rewrite.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
