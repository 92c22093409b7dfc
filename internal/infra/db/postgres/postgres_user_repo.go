package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, first_name, last_name, role, COALESCE(gateway_customer_id, ''), created_at, updated_at`

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, email, first_name, last_name, role, gateway_customer_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  email=$2, first_name=$3, last_name=$4, role=$5, gateway_customer_id=$6, updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, u.ID, strings.ToLower(u.Email), u.FirstName, u.LastName, string(u.Role), nullStr(u.GatewayCustomerID), u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE email=$1;`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepo) SetGatewayCustomerID(ctx context.Context, tx repository.Tx, userID, customerID string) error {
	const q = `UPDATE users SET gateway_customer_id=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, customerID)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.GatewayCustomerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapReadErr(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
