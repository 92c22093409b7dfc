// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/json"
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
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase reconciles gateway subscription events into local state.
type WebhookUseCase interface {
	// Handle verifies the signature over raw and applies the event. Only
	// ErrInvalidSignature and ErrMalformedPayload are returned; anything that
	// fails later is logged and reported as WebhookError so the caller acks.
	Handle(ctx context.Context, raw []byte, signature string) (model.WebhookOutcome, error)
}

// errChargeRaced rolls back a charge whose payment id was recorded by a
// concurrent delivery between the dedupe check and the insert.
var errChargeRaced = errors.New("charge recorded concurrently")

type webhookUC struct {
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

func NewWebhookUseCase(
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
) *webhookUC {
	o := applyOptions(opts)
	log := componentLogger(logger, "webhookUC")
	return &webhookUC{
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

// pendingMail is sent after the transaction commits.
type pendingMail struct {
	userID    string
	course    *model.Course
	subject   string
	lines     []string
	expiresAt *time.Time
}

func eventLabel(event string) string {
	switch event {
	case model.EventSubscriptionCharged, model.EventSubscriptionHalted, model.EventSubscriptionCancelled:
		return event
	}
	return "other"
}

func (u *webhookUC) Handle(ctx context.Context, raw []byte, signature string) (outcome model.WebhookOutcome, err error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	log := logging.With(ctx, u.log)
	start := time.Now()
	label := "unknown"
	defer func() {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			metrics.ObserveWebhook(label, "invalid_signature", time.Since(start))
		case errors.Is(err, domain.ErrMalformedPayload):
			metrics.ObserveWebhook(label, "malformed", time.Since(start))
		default:
			metrics.ObserveWebhook(label, string(outcome), time.Since(start))
		}
	}()

	if signature == "" || !u.verifier.Verify(raw, signature) {
		log.Warn().Int("bytes", len(raw)).Msg("webhook signature mismatch")
		return model.WebhookError, domain.ErrInvalidSignature
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Error().Err(err).Msg("webhook payload could not be decoded")
		return model.WebhookError, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	label = eventLabel(ev.Event)

	var mail *pendingMail
	switch ev.Event {
	case model.EventSubscriptionCharged:
		outcome, mail, err = u.applyCharge(ctx, &ev)
	case model.EventSubscriptionHalted, model.EventSubscriptionCancelled:
		outcome, mail, err = u.applyCancel(ctx, &ev)
	default:
		log.Debug().Str("event", ev.Event).Msg("webhook event not handled")
		return model.WebhookUnhandled, nil
	}
	if err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("webhook reconciliation failed")
		return model.WebhookError, nil
	}

	log.Info().Str("event", ev.Event).Str("outcome", string(outcome)).Msg("webhook reconciled")
	if mail != nil {
		u.mailer.send(ctx, mail.userID, mail.course, mail.subject, mail.lines, mail.expiresAt)
	}
	return outcome, nil
}

func unixOr(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}

func (u *webhookUC) applyCharge(ctx context.Context, ev *model.WebhookEvent) (model.WebhookOutcome, *pendingMail, error) {
	log := logging.With(ctx, u.log)
	se, pe := ev.SubscriptionEntity(), ev.PaymentEntity()
	if se == nil || se.ID == "" || pe == nil || pe.ID == "" {
		log.Warn().Msg("charge event without subscription or payment entity")
		return model.WebhookIgnored, nil, nil
	}

	outcome := model.WebhookProcessed
	var (
		mail     *pendingMail
		recorded *model.Payment
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByRecurringRef(ctx, tx, se.ID)
		if isNotFound(err) {
			log.Warn().Str("recurring_ref", se.ID).Msg("charge for unknown subscription")
			outcome = model.WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}
		if sub.HasPayment(pe.ID) {
			outcome = model.WebhookDuplicate
			return nil
		}
		if _, err := u.payments.FindByGatewayPaymentID(ctx, tx, pe.ID); err == nil {
			outcome = model.WebhookDuplicate
			return nil
		} else if !isNotFound(err) {
			return err
		}
		if sub.Status.IsTerminal() {
			log.Warn().Str("recurring_ref", se.ID).Str("status", string(sub.Status)).Msg("charge for closed subscription ignored")
			outcome = model.WebhookIgnored
			return nil
		}

		course, err := u.courses.FindByID(ctx, repository.NoTX, sub.CourseID)
		if err != nil {
			return err
		}

		now := u.now().UTC()
		paidAt := unixOr(pe.CreatedAt, now)
		currency := pe.Currency
		if currency == "" {
			currency = sub.Currency
		}
		amount := model.FromMinor(pe.Amount)

		sub.PaidCount++
		if sub.TotalCount == 0 && se.TotalCount > 0 {
			sub.TotalCount = se.TotalCount
		}
		sub.AppendPayment(model.PaymentHistoryEntry{
			PaymentID: pe.ID,
			OrderID:   pe.OrderID,
			Amount:    amount,
			Currency:  currency,
			Status:    pe.Status,
			PaidAt:    paidAt,
			Raw:       map[string]any{"method": pe.Method, "installment": sub.PaidCount},
		})
		recorded = &model.Payment{
			ID:               uuid.NewString(),
			UserID:           sub.UserID,
			CourseID:         sub.CourseID,
			SubscriptionID:   sub.ID,
			OrderRef:         pe.OrderID,
			GatewayPaymentID: pe.ID,
			Amount:           amount,
			AmountMinor:      pe.Amount,
			Currency:         currency,
			Source:           model.PaymentSourceWebhook,
			PaidAt:           paidAt,
			CreatedAt:        now,
		}
		inserted, err := u.payments.Append(ctx, tx, recorded)
		if err != nil {
			return err
		}
		if !inserted {
			return errChargeRaced
		}

		if se.ChargeAt > 0 {
			next := time.Unix(se.ChargeAt, 0).UTC()
			sub.NextPaymentAt = &next
		}

		var expiresAt time.Time
		subject := "Installment Received"
		lines := []string{fmt.Sprintf("We received instalment %d of %d.", sub.PaidCount, sub.TotalCount)}
		if sub.PaidCount == 1 {
			expiresAt = model.AddDays(now, course.Duration())
			subject = "Enrollment Confirmed"
			lines = []string{"Your first instalment was received and your access is now active."}
		} else {
			current := now
			ent, err := u.ents.Current(ctx, tx, sub.UserID, sub.CourseID)
			if err != nil {
				return err
			}
			switch {
			case ent != nil:
				current = ent.ExpiresAt
			case sub.ExpiresAt != nil:
				current = *sub.ExpiresAt
			}
			expiresAt = model.RenewalExpiry(current, now)
		}

		sub.Status = model.SubscriptionStatusActive
		if sub.InstallmentsComplete() {
			sub.Status = model.SubscriptionStatusCompleted
			sub.LifetimeAccess = true
			sub.NextPaymentAt = nil
			expiresAt = model.LifetimeExpiry
			lines = append(lines, "All instalments are paid. You now have lifetime access.")
		}
		if err := u.ents.GrantOrExtend(ctx, tx, sub.UserID, sub.CourseID, expiresAt); err != nil {
			return err
		}
		sub.ExpiresAt = &expiresAt
		sub.UpdatedAt = now
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		mail = &pendingMail{userID: sub.UserID, course: course, subject: subject, lines: lines, expiresAt: &expiresAt}
		return nil
	})
	if errors.Is(err, errChargeRaced) {
		metrics.IncPayment(string(model.PaymentSourceWebhook), "duplicate")
		return model.WebhookDuplicate, nil, nil
	}
	if err != nil {
		return model.WebhookError, nil, err
	}

	switch outcome {
	case model.WebhookProcessed:
		metrics.IncPayment(string(model.PaymentSourceWebhook), "recorded")
		metrics.AddPaymentRevenue(recorded.Currency, recorded.AmountMinor)
	case model.WebhookDuplicate:
		metrics.IncPayment(string(model.PaymentSourceWebhook), "duplicate")
	}
	return outcome, mail, nil
}

func (u *webhookUC) applyCancel(ctx context.Context, ev *model.WebhookEvent) (model.WebhookOutcome, *pendingMail, error) {
	log := logging.With(ctx, u.log)
	se := ev.SubscriptionEntity()
	if se == nil || se.ID == "" {
		log.Warn().Str("event", ev.Event).Msg("cancel event without subscription entity")
		return model.WebhookIgnored, nil, nil
	}

	outcome := model.WebhookProcessed
	var mail *pendingMail
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByRecurringRef(ctx, tx, se.ID)
		if isNotFound(err) {
			outcome = model.WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case sub.Status == model.SubscriptionStatusCancelled:
			outcome = model.WebhookDuplicate
			return nil
		case !sub.CanCancel():
			log.Info().Str("recurring_ref", se.ID).Str("status", string(sub.Status)).Msg("cancel event for closed subscription ignored")
			outcome = model.WebhookIgnored
			return nil
		}

		sub.Status = model.SubscriptionStatusCancelled
		sub.NextPaymentAt = nil
		sub.UpdatedAt = u.now().UTC()
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if err := u.ents.Revoke(ctx, tx, sub.UserID, sub.CourseID); err != nil {
			return err
		}

		course, err := u.courses.FindByID(ctx, repository.NoTX, sub.CourseID)
		if err != nil {
			log.Warn().Err(err).Str("course_id", sub.CourseID).Msg("course lookup for cancel notice failed")
			return nil
		}
		mail = &pendingMail{
			userID:  sub.UserID,
			course:  course,
			subject: "Subscription Cancelled",
			lines:   []string{"Your instalment subscription was cancelled and course access has ended."},
		}
		return nil
	})
	if err != nil {
		return model.WebhookError, nil, err
	}
	return outcome, mail, nil
}
