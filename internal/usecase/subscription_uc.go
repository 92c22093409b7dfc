// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/domain/ports/repository"
	portuc "lms-billing/internal/domain/ports/usecase"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
)

// Compile-time checks
var (
	_ SubscriptionUseCase  = (*subscriptionUC)(nil)
	_ portuc.ExpirySweeper = (*subscriptionUC)(nil)
)

type SubscriptionUseCase interface {
	// Cancel stops a subscription and revokes access immediately. Students
	// may cancel only their own; staff may cancel any.
	Cancel(ctx context.Context, actorID string, actorRole model.Role, subscriptionID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)
	ListAll(ctx context.Context, limit, offset int) ([]*model.Subscription, error)
	ExpireDue(ctx context.Context) (int, error)
	RefreshStatusGauges(ctx context.Context) error
}

type subscriptionUC struct {
	tm      repository.TransactionManager
	courses repository.CourseRepository
	subs    repository.SubscriptionRepository
	ents    EntitlementUseCase
	gateway adapter.PaymentGateway
	mailer  *studentMailer
	log     *zerolog.Logger
	now     func() time.Time
}

func NewSubscriptionUseCase(
	tm repository.TransactionManager,
	users repository.UserRepository,
	courses repository.CourseRepository,
	subs repository.SubscriptionRepository,
	ents EntitlementUseCase,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
	opts ...Option,
) *subscriptionUC {
	o := applyOptions(opts)
	log := componentLogger(logger, "subscriptionUC")
	return &subscriptionUC{
		tm:      tm,
		courses: courses,
		subs:    subs,
		ents:    ents,
		gateway: gateway,
		mailer:  &studentMailer{users: users, notifier: notifier, log: log},
		log:     log,
		now:     o.now,
	}
}

func (u *subscriptionUC) Cancel(ctx context.Context, actorID string, actorRole model.Role, subscriptionID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Cancel")()
	log := logging.With(ctx, u.log)
	if subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}

	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !actorRole.IsStaff() && sub.UserID != actorID {
		return nil, domain.ErrForbidden
	}
	if sub.Status == model.SubscriptionStatusCancelled {
		return sub, nil
	}
	if !sub.CanCancel() {
		return nil, domain.ErrInvalidTransition
	}

	if sub.RecurringRef != "" && u.gateway != nil {
		if err := u.gateway.CancelRecurringSubscription(ctx, sub.RecurringRef); err != nil {
			log.Warn().Err(err).Str("recurring_ref", sub.RecurringRef).Msg("gateway cancel failed, cancelling locally")
		}
	}

	changed := false
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		locked, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		sub = locked
		if sub.Status == model.SubscriptionStatusCancelled {
			return nil
		}
		if !sub.CanCancel() {
			return domain.ErrInvalidTransition
		}
		sub.Status = model.SubscriptionStatusCancelled
		sub.NextPaymentAt = nil
		sub.UpdatedAt = u.now().UTC()
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return persistErr("save subscription", err)
		}
		if err := u.ents.Revoke(ctx, tx, sub.UserID, sub.CourseID); err != nil {
			return persistErr("revoke entitlement", err)
		}
		changed = true
		return nil
	})
	if err = txErr("cancel subscription", err); err != nil {
		return nil, err
	}

	if changed {
		log.Info().
			Str("subscription_id", sub.ID).
			Str("student_id", sub.UserID).
			Str("actor_role", string(actorRole)).
			Msg("subscription cancelled")
		if course, err := u.courses.FindByID(ctx, repository.NoTX, sub.CourseID); err == nil {
			u.mailer.send(ctx, sub.UserID, course, "Subscription Cancelled",
				[]string{"Your subscription was cancelled and course access has ended."}, nil)
		}
	}
	return sub, nil
}

func (u *subscriptionUC) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ListByUser")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.subs.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) ListAll(ctx context.Context, limit, offset int) ([]*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ListAll")()
	return u.subs.ListAll(ctx, repository.NoTX, limit, offset)
}

// ExpireDue moves lapsed free and one-time subscriptions to expired.
// Entitlement rows stay; their expiry already makes them inactive.
func (u *subscriptionUC) ExpireDue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExpireDue")()
	n, err := u.subs.ExpireDue(ctx, repository.NoTX, u.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		logging.With(ctx, u.log).Info().Int("count", n).Msg("subscriptions expired")
	}
	return n, nil
}

func (u *subscriptionUC) RefreshStatusGauges(ctx context.Context) error {
	counts, err := u.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetSubscriptionsTotal(counts)
	return nil
}
