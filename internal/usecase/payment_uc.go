// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
	"lms-billing/internal/infra/security"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase verifies one-time checkouts and serves the receipt log.
type PaymentUseCase interface {
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResult, error)
	History(ctx context.Context, userID string) ([]*model.PaymentRecord, error)
	ListAll(ctx context.Context, limit, offset int) ([]*model.PaymentRecord, error)
}

// SignatureVerifier checks a hex HMAC over msg.
type SignatureVerifier interface {
	Verify(msg []byte, signature string) bool
}

type paymentUC struct {
	tm       repository.TransactionManager
	courses  repository.CourseRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	ents     EntitlementUseCase
	verifier SignatureVerifier
	mailer   *studentMailer
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(
	tm repository.TransactionManager,
	users repository.UserRepository,
	courses repository.CourseRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	ents EntitlementUseCase,
	verifier SignatureVerifier,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
	opts ...Option,
) *paymentUC {
	o := applyOptions(opts)
	log := componentLogger(logger, "paymentUC")
	return &paymentUC{
		tm:       tm,
		courses:  courses,
		subs:     subs,
		payments: payments,
		ents:     ents,
		verifier: verifier,
		mailer:   &studentMailer{users: users, notifier: notifier, log: log},
		log:      log,
		now:      o.now,
	}
}

// Verify checks the checkout signature and, on success, records the payment,
// grants access and activates the one-time subscription in one transaction.
// Replaying the same callback returns the same expiry and records nothing new.
func (u *paymentUC) Verify(ctx context.Context, req model.VerifyRequest) (res *model.VerifyResult, err error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Verify")()
	log := logging.With(ctx, u.log)
	start := time.Now()
	reason := "unknown"
	defer func() {
		if err == nil {
			metrics.ObservePaymentVerify("ok", "", time.Since(start))
			return
		}
		metrics.ObservePaymentVerify("fail", reason, time.Since(start))
	}()

	if req.UserID == "" || req.CourseID == "" || req.OrderRef == "" || req.PaymentRef == "" || req.Signature == "" {
		reason = "bad_request"
		return nil, fmt.Errorf("%w: order id, payment id, signature and course are required", domain.ErrInvalidArgument)
	}
	if !u.verifier.Verify(security.CheckoutPayload(req.OrderRef, req.PaymentRef), req.Signature) {
		reason = "bad_signature"
		log.Warn().
			Str("order_id", req.OrderRef).
			Str("payment_id", req.PaymentRef).
			Str("course_id", req.CourseID).
			Msg("checkout signature mismatch, possible tampering")
		return nil, domain.ErrInvalidSignature
	}

	course, err := u.courses.FindByID(ctx, repository.NoTX, req.CourseID)
	if err != nil {
		if isNotFound(err) {
			reason = "not_found"
		}
		return nil, err
	}

	var (
		sub       *model.Subscription
		expiresAt time.Time
		duplicate bool
		paid      *model.Payment
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now().UTC()
		paidAt := now
		prior, err := u.payments.FindByGatewayPaymentID(ctx, tx, req.PaymentRef)
		switch {
		case err == nil:
			if prior.UserID != req.UserID || prior.CourseID != req.CourseID {
				return fmt.Errorf("%w: payment belongs to another enrollment", domain.ErrForbidden)
			}
			duplicate = true
			paidAt = prior.PaidAt.UTC()
		case !isNotFound(err):
			return persistErr("lookup payment", err)
		}
		if duplicate {
			sub, expiresAt, err = u.loadVerified(ctx, tx, req, paidAt, course)
			return err
		}
		expiresAt = model.PurchaseExpiry(paidAt, course.Duration())

		sub, err = u.subs.FindOneTimeByOrder(ctx, tx, req.UserID, req.CourseID, req.OrderRef)
		switch {
		case isNotFound(err):
			log.Warn().Str("order_id", req.OrderRef).Msg("no pending subscription for verified order, creating one")
			sub, err = model.NewSubscription(req.UserID, req.CourseID, model.SubscriptionTypeOneTime, model.SubscriptionStatusPending, course.Price, model.DefaultCurrency)
			if err != nil {
				return err
			}
			sub.OrderRef = req.OrderRef
			sub.CreatedAt = now
		case err != nil:
			return persistErr("lookup subscription", err)
		}
		if sub.Status.IsTerminal() {
			return fmt.Errorf("%w: subscription %s is %s", domain.ErrInvalidTransition, sub.ID, sub.Status)
		}

		amount := sub.Amount
		if amount <= 0 {
			amount = course.Price
		}
		paid = &model.Payment{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			CourseID:         req.CourseID,
			SubscriptionID:   sub.ID,
			OrderRef:         req.OrderRef,
			GatewayPaymentID: req.PaymentRef,
			Amount:           amount,
			AmountMinor:      model.ToMinor(amount),
			Currency:         sub.Currency,
			Source:           model.PaymentSourceVerify,
			PaidAt:           paidAt,
			CreatedAt:        now,
		}
		inserted, err := u.payments.Append(ctx, tx, paid)
		if err != nil {
			return persistErr("append payment", err)
		}
		if !inserted {
			// lost a race with a concurrent verify of the same payment
			duplicate = true
			paid = nil
			sub, expiresAt, err = u.loadVerified(ctx, tx, req, paidAt, course)
			return err
		}

		// a late purchase never shortens access granted by another path
		cur, err := u.ents.Current(ctx, tx, req.UserID, req.CourseID)
		if err != nil {
			return persistErr("lookup entitlement", err)
		}
		if cur != nil && cur.ExpiresAt.After(expiresAt) {
			expiresAt = cur.ExpiresAt
		}

		if err := u.ents.GrantOrExtend(ctx, tx, req.UserID, req.CourseID, expiresAt); err != nil {
			return persistErr("grant entitlement", err)
		}

		sub.Status = model.SubscriptionStatusActive
		sub.ExpiresAt = &expiresAt
		sub.LifetimeAccess = !expiresAt.Before(model.LifetimeExpiry)
		sub.AppendPayment(model.PaymentHistoryEntry{
			PaymentID: req.PaymentRef,
			OrderID:   req.OrderRef,
			Amount:    amount,
			Currency:  sub.Currency,
			Status:    "captured",
			PaidAt:    paidAt,
		})
		sub.UpdatedAt = now
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return persistErr("save subscription", err)
		}
		return nil
	})
	if err = txErr("verify payment", err); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			reason = "persist_error"
		}
		log.Error().Err(err).Str("order_id", req.OrderRef).Str("payment_id", req.PaymentRef).Msg("payment verification failed")
		return nil, err
	}

	if duplicate {
		metrics.IncPayment(string(model.PaymentSourceVerify), "duplicate")
		log.Info().Str("payment_id", req.PaymentRef).Msg("payment already verified")
	} else {
		metrics.IncPayment(string(model.PaymentSourceVerify), "recorded")
		metrics.AddPaymentRevenue(paid.Currency, paid.AmountMinor)
		log.Info().
			Str("order_id", req.OrderRef).
			Str("payment_id", req.PaymentRef).
			Time("expires_at", expiresAt).
			Msg("payment verified")
		u.mailer.send(ctx, req.UserID, course, "Enrollment Confirmed",
			[]string{"Your payment was received and your access is now active."}, &expiresAt)
	}

	return &model.VerifyResult{
		Subscription: sub,
		ExpiresAt:    expiresAt,
		Lifetime:     !expiresAt.Before(model.LifetimeExpiry),
		Duplicate:    duplicate,
	}, nil
}

func (u *paymentUC) History(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.History")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.ListByUser(ctx, repository.NoTX, userID)
}

func (u *paymentUC) ListAll(ctx context.Context, limit, offset int) ([]*model.PaymentRecord, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ListAll")()
	return u.payments.ListAll(ctx, repository.NoTX, limit, offset)
}

// loadVerified reports an already recorded payment without writing. The
// stored subscription expiry wins; paidAt based expiry covers rows that were
// never saved.
func (u *paymentUC) loadVerified(ctx context.Context, tx repository.Tx, req model.VerifyRequest, paidAt time.Time, course *model.Course) (*model.Subscription, time.Time, error) {
	sub, err := u.subs.FindOneTimeByOrder(ctx, tx, req.UserID, req.CourseID, req.OrderRef)
	switch {
	case isNotFound(err):
		return nil, model.PurchaseExpiry(paidAt, course.Duration()), nil
	case err != nil:
		return nil, time.Time{}, persistErr("lookup subscription", err)
	}
	if sub.ExpiresAt != nil {
		return sub, *sub.ExpiresAt, nil
	}
	return sub, model.PurchaseExpiry(paidAt, course.Duration()), nil
}
