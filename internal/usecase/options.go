package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/logging"
)

// Option customises a use case at construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now. Tests use it to pin the current time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func componentLogger(logger *zerolog.Logger, name string) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", name).Logger()
	return &l
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

// studentMailer sends best-effort course notifications to a student.
type studentMailer struct {
	users    repository.UserRepository
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func (m *studentMailer) send(ctx context.Context, userID string, course *model.Course, suffix string, lines []string, expiresAt *time.Time) {
	if m.notifier == nil {
		return
	}
	log := logging.With(ctx, m.log)
	user, err := m.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("notification skipped: user lookup failed")
		return
	}
	n := adapter.Notification{
		To:          user.Email,
		Name:        user.FullName(),
		Subject:     course.Title + " - " + suffix,
		Lines:       lines,
		CourseTitle: course.Title,
		ExpiresAt:   expiresAt,
	}
	if err := m.notifier.Send(ctx, n); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("subject", n.Subject).Msg("notification failed")
	}
}

// txErr keeps domain errors raised inside a transaction and reports
// begin/commit failures as persistence errors.
func txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrPersistence,
		domain.ErrInvalidArgument,
		domain.ErrForbidden,
		domain.ErrNotFound,
		domain.ErrInvalidTransition,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return persistErr(op, err)
}
