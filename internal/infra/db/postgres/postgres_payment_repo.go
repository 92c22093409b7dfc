package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `
p.id, p.user_id, p.course_id, COALESCE(p.subscription_id, ''), COALESCE(p.order_ref, ''), p.gateway_payment_id,
p.amount::float8, p.amount_minor, p.currency, p.source, p.paid_at, p.created_at`

func (r *paymentRepo) Append(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO payments (
  id, user_id, course_id, subscription_id, order_ref, gateway_payment_id, amount, amount_minor, currency, source, paid_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (gateway_payment_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.CourseID, nullStr(p.SubscriptionID), nullStr(p.OrderRef), p.GatewayPaymentID,
		p.Amount, p.AmountMinor, p.Currency, string(p.Source), p.PaidAt.UTC(), p.CreatedAt.UTC())
	if err != nil {
		return false, mapWriteErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, gatewayPaymentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments p WHERE p.gateway_payment_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	var source string
	if err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.SubscriptionID, &p.OrderRef, &p.GatewayPaymentID,
		&p.Amount, &p.AmountMinor, &p.Currency, &source, &p.PaidAt, &p.CreatedAt); err != nil {
		return nil, mapReadErr(err)
	}
	p.Source = model.PaymentSource(source)
	return p, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + `, COALESCE(c.title, ''), COALESCE(u.email, '')
  FROM payments p
  LEFT JOIN courses c ON c.id = p.course_id
  LEFT JOIN users u ON u.id = p.user_id
 WHERE p.user_id=$1
 ORDER BY p.paid_at DESC;`
	return r.queryRecords(ctx, tx, q, userID)
}

func (r *paymentRepo) ListAll(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + paymentColumns + `, COALESCE(c.title, ''), COALESCE(u.email, '')
  FROM payments p
  LEFT JOIN courses c ON c.id = p.course_id
  LEFT JOIN users u ON u.id = p.user_id
 ORDER BY p.paid_at DESC
 LIMIT $1 OFFSET $2;`
	return r.queryRecords(ctx, tx, q, limit, offset)
}

func (r *paymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	switch period {
	case "week", "month", "year":
	default:
		return 0, fmt.Errorf("%w: period %q", domain.ErrInvalidArgument, period)
	}
	const q = `SELECT COALESCE(SUM(amount_minor),0)::bigint FROM payments WHERE paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentRepo) queryRecords(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.PaymentRecord, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		rec := &model.PaymentRecord{}
		p := &rec.Payment
		var source string
		if err := rows.Scan(&p.ID, &p.UserID, &p.CourseID, &p.SubscriptionID, &p.OrderRef, &p.GatewayPaymentID,
			&p.Amount, &p.AmountMinor, &p.Currency, &source, &p.PaidAt, &p.CreatedAt,
			&rec.CourseTitle, &rec.StudentEmail); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Source = model.PaymentSource(source)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
