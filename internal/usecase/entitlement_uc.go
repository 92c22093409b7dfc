// File: internal/usecase/entitlement_uc.go
package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// EntitlementUseCase owns the per-user course access set.
type EntitlementUseCase interface {
	// GrantOrExtend sets the entitlement expiry, creating the row if needed.
	GrantOrExtend(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt time.Time) error
	Revoke(ctx context.Context, tx repository.Tx, userID, courseID string) error
	// Current returns the stored entitlement or nil.
	Current(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Entitlement, error)
	IsActive(ctx context.Context, userID, courseID string, at time.Time) (bool, error)
	Status(ctx context.Context, userID string) ([]model.EntitlementView, error)
}

type entitlementUC struct {
	ents    repository.EntitlementRepository
	courses repository.CourseRepository
	log     *zerolog.Logger
	now     func() time.Time
}

func NewEntitlementUseCase(ents repository.EntitlementRepository, courses repository.CourseRepository, logger *zerolog.Logger, opts ...Option) *entitlementUC {
	o := applyOptions(opts)
	return &entitlementUC{
		ents:    ents,
		courses: courses,
		log:     componentLogger(logger, "entitlementUC"),
		now:     o.now,
	}
}

func (u *entitlementUC) GrantOrExtend(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt time.Time) error {
	if userID == "" || courseID == "" {
		return domain.ErrInvalidArgument
	}
	if err := u.ents.Upsert(ctx, tx, userID, courseID, expiresAt.UTC(), u.now().UTC()); err != nil {
		return err
	}
	metrics.IncEntitlementChange("grant")
	logging.With(ctx, u.log).Debug().
		Str("course_id", courseID).
		Time("expires_at", expiresAt).
		Msg("entitlement granted")
	return nil
}

func (u *entitlementUC) Revoke(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	if err := u.ents.Delete(ctx, tx, userID, courseID); err != nil {
		return err
	}
	metrics.IncEntitlementChange("revoke")
	logging.With(ctx, u.log).Info().Str("course_id", courseID).Str("student_id", userID).Msg("entitlement revoked")
	return nil
}

func (u *entitlementUC) Current(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Entitlement, error) {
	e, err := u.ents.Find(ctx, tx, userID, courseID)
	if isNotFound(err) {
		return nil, nil
	}
	return e, err
}

func (u *entitlementUC) IsActive(ctx context.Context, userID, courseID string, at time.Time) (bool, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.IsActive")()
	e, err := u.Current(ctx, repository.NoTX, userID, courseID)
	if err != nil {
		return false, err
	}
	return e.IsActive(at), nil
}

// Status projects the entitlement set against the current time. Titles of
// deleted courses come back empty.
func (u *entitlementUC) Status(ctx context.Context, userID string) ([]model.EntitlementView, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.Status")()
	list, err := u.ents.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.CourseID)
	}
	titles, err := u.courses.FindTitles(ctx, repository.NoTX, ids)
	if err != nil {
		return nil, err
	}

	now := u.now()
	out := make([]model.EntitlementView, 0, len(list))
	for _, e := range list {
		out = append(out, model.EntitlementView{
			CourseID:    e.CourseID,
			CourseTitle: titles[e.CourseID],
			Status:      e.Status(now),
			ExpiresAt:   e.ExpiresAt,
			Lifetime:    e.IsLifetime(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out, nil
}
