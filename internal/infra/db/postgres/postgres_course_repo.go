package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
)

var _ repository.CourseRepository = (*courseRepo)(nil)

type courseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

func (r *courseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	const q = `
INSERT INTO courses (id, title, price, duration_in_days, allow_full_payment, allow_emi, emi_plans, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  title=$2, price=$3, duration_in_days=$4, allow_full_payment=$5, allow_emi=$6, emi_plans=$7::jsonb, updated_at=$9;`

	plans := c.EMIPlans
	if plans == nil {
		plans = []model.EMIPlanTemplate{}
	}
	raw, err := json.Marshal(plans)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.Price, c.DurationInDays, c.AllowFullPayment, c.AllowEMI, string(raw), c.CreatedAt, c.UpdatedAt)
	return mapWriteErr(err)
}

func (r *courseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	const q = `
SELECT id, title, price::float8, duration_in_days, allow_full_payment, allow_emi, emi_plans, created_at, updated_at
  FROM courses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	c := &model.Course{}
	var plans []byte
	if err := row.Scan(&c.ID, &c.Title, &c.Price, &c.DurationInDays, &c.AllowFullPayment, &c.AllowEMI, &plans, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapReadErr(err)
	}
	if len(plans) > 0 {
		if err := json.Unmarshal(plans, &c.EMIPlans); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return c, nil
}

func (r *courseRepo) FindTitles(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT id, title FROM courses WHERE id = ANY($1);`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[id] = title
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
