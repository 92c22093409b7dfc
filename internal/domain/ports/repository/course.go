package repository

import (
	"context"

	"lms-billing/internal/domain/model"
)

type CourseRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Course) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Course, error)
	// FindTitles returns id -> title for the given ids; unknown ids are omitted.
	FindTitles(ctx context.Context, tx Tx, ids []string) (map[string]string, error)
}
