package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

func (r *entitlementRepo) Upsert(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt, now time.Time) error {
	const q = `
INSERT INTO entitlements (user_id, course_id, subscribed_at, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, course_id) DO UPDATE SET
  subscribed_at=$3, expires_at=$4;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, courseID, now.UTC(), expiresAt.UTC())
	return mapWriteErr(err)
}

func (r *entitlementRepo) Delete(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	const q = `DELETE FROM entitlements WHERE user_id=$1 AND course_id=$2;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, courseID)
	return mapWriteErr(err)
}

func (r *entitlementRepo) Find(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Entitlement, error) {
	q := `SELECT user_id, course_id, subscribed_at, expires_at FROM entitlements WHERE user_id=$1 AND course_id=$2`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID, courseID)
	if err != nil {
		return nil, err
	}
	e := &model.Entitlement{}
	if err := row.Scan(&e.UserID, &e.CourseID, &e.SubscribedAt, &e.ExpiresAt); err != nil {
		return nil, mapReadErr(err)
	}
	return e, nil
}

func (r *entitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	const q = `
SELECT user_id, course_id, subscribed_at, expires_at
  FROM entitlements
 WHERE user_id=$1
 ORDER BY subscribed_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()
	var out []*model.Entitlement
	for rows.Next() {
		e := &model.Entitlement{}
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.SubscribedAt, &e.ExpiresAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
