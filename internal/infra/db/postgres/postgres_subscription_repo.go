package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
id, user_id, course_id, type, status, amount::float8, currency,
COALESCE(order_ref, ''), COALESCE(recurring_ref, ''), COALESCE(plan_ref, ''), emi,
total_count, paid_count, next_payment_at, expires_at, lifetime_access,
payment_history, metadata, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, course_id, type, status, amount, currency, order_ref, recurring_ref, plan_ref, emi,
  total_count, paid_count, next_payment_at, expires_at, lifetime_access, payment_history, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13,$14,$15,$16,$17::jsonb,$18::jsonb,$19,$20
) ON CONFLICT (id) DO UPDATE SET
  status=$5, amount=$6, currency=$7, order_ref=$8, recurring_ref=$9, plan_ref=$10, emi=$11::jsonb,
  total_count=$12, paid_count=$13, next_payment_at=$14, expires_at=$15, lifetime_access=$16,
  payment_history=$17::jsonb, metadata=$18::jsonb, updated_at=$20;`

	var emi *string
	if s.EMI != nil {
		b, err := json.Marshal(s.EMI)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		v := string(b)
		emi = &v
	}
	history := s.PaymentHistory
	if history == nil {
		history = []model.PaymentHistoryEntry{}
	}
	hb, err := json.Marshal(history)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	meta := s.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.CourseID, string(s.Type), string(s.Status), s.Amount, s.Currency,
		nullStr(s.OrderRef), nullStr(s.RecurringRef), nullStr(s.PlanRef), emi,
		s.TotalCount, s.PaidCount, s.NextPaymentAt, s.ExpiresAt, s.LifetimeAccess,
		string(hb), string(mb), s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

func (r *subscriptionRepo) FindByRecurringRef(ctx context.Context, tx repository.Tx, recurringRef string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE recurring_ref=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", recurringRef)
}

func (r *subscriptionRepo) FindOneTimeByOrder(ctx context.Context, tx repository.Tx, userID, courseID, orderRef string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND course_id=$2 AND type='one-time' AND order_ref=$3
 ORDER BY created_at DESC
 LIMIT 1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", userID, courseID, orderRef)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *subscriptionRepo) ListAll(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at DESC LIMIT $1 OFFSET $2;`
	return r.queryMany(ctx, tx, q, limit, offset)
}

func (r *subscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE subscriptions
   SET status='expired', updated_at=$1
 WHERE status='active'
   AND type IN ('free','one-time')
   AND lifetime_access = FALSE
   AND expires_at IS NOT NULL
   AND expires_at <= $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, now.UTC())
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var typ, status string
	var emi, history, meta []byte
	if err := row.Scan(
		&s.ID, &s.UserID, &s.CourseID, &typ, &status, &s.Amount, &s.Currency,
		&s.OrderRef, &s.RecurringRef, &s.PlanRef, &emi,
		&s.TotalCount, &s.PaidCount, &s.NextPaymentAt, &s.ExpiresAt, &s.LifetimeAccess,
		&history, &meta, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, mapReadErr(err)
	}
	s.Type = model.SubscriptionType(typ)
	s.Status = model.SubscriptionStatus(status)
	if len(emi) > 0 && string(emi) != "null" {
		s.EMI = &model.EMISnapshot{}
		if err := json.Unmarshal(emi, s.EMI); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.PaymentHistory); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return s, nil
}
