// File: internal/usecase/enrollment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
)

// Compile-time check
var _ EnrollmentUseCase = (*enrollmentUC)(nil)

// EnrollmentUseCase starts every kind of enrollment: free grants, one-time
// checkout orders and EMI recurring subscriptions.
type EnrollmentUseCase interface {
	Enroll(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error)
}

// EnrollmentConfig carries the checkout settings returned to clients.
type EnrollmentConfig struct {
	KeyID    string
	Currency string
	LockTTL  time.Duration
}

type enrollmentUC struct {
	users   repository.UserRepository
	courses repository.CourseRepository
	subs    repository.SubscriptionRepository
	ents    EntitlementUseCase
	gateway adapter.PaymentGateway
	locker  adapter.Locker
	mailer  *studentMailer
	cfg     EnrollmentConfig
	log     *zerolog.Logger
	now     func() time.Time
}

func NewEnrollmentUseCase(
	users repository.UserRepository,
	courses repository.CourseRepository,
	subs repository.SubscriptionRepository,
	ents EntitlementUseCase,
	gateway adapter.PaymentGateway,
	locker adapter.Locker,
	notifier adapter.Notifier,
	cfg EnrollmentConfig,
	logger *zerolog.Logger,
	opts ...Option,
) *enrollmentUC {
	o := applyOptions(opts)
	if cfg.Currency == "" {
		cfg.Currency = model.DefaultCurrency
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	log := componentLogger(logger, "enrollmentUC")
	return &enrollmentUC{
		users:   users,
		courses: courses,
		subs:    subs,
		ents:    ents,
		gateway: gateway,
		locker:  locker,
		mailer:  &studentMailer{users: users, notifier: notifier, log: log},
		cfg:     cfg,
		log:     log,
		now:     o.now,
	}
}

func enrollLockKey(userID, courseID string) string {
	return "lock:enroll:" + userID + ":" + courseID
}

// Enroll serialises attempts per (user, course) and dispatches on the variant.
func (u *enrollmentUC) Enroll(ctx context.Context, req model.EnrollRequest) (*model.EnrollResult, error) {
	defer logging.TraceDuration(u.log, "EnrollmentUC.Enroll")()
	if req == nil {
		return nil, domain.ErrInvalidArgument
	}
	userID, courseID := req.Target()
	if userID == "" || courseID == "" {
		return nil, fmt.Errorf("%w: user and course are required", domain.ErrInvalidArgument)
	}

	if u.locker != nil {
		key := enrollLockKey(userID, courseID)
		token, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrEnrollmentInProgress) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: acquire enrollment lock: %v", domain.ErrEnrollmentInProgress, err)
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				logging.With(ctx, u.log).Warn().Err(err).Str("key", key).Msg("enrollment lock release failed")
			}
		}()
	}

	var (
		res  *model.EnrollResult
		err  error
		mode model.SubscriptionType
	)
	switch r := req.(type) {
	case model.FreeEnroll:
		mode = model.SubscriptionTypeFree
		res, err = u.enrollFree(ctx, r)
	case model.OneTimeInitiate:
		mode = model.SubscriptionTypeOneTime
		res, err = u.initiateOneTime(ctx, r)
	case model.EmiInitiate:
		mode = model.SubscriptionTypeRecurring
		res, err = u.initiateEMI(ctx, r)
	default:
		return nil, domain.ErrInvalidArgument
	}
	metrics.IncEnrollment(mode, enrollResultLabel(err))
	return res, err
}

func enrollResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrPaymentGateway):
		return "gateway_error"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	default:
		return "rejected"
	}
}

func (u *enrollmentUC) activeEntitlement(ctx context.Context, userID, courseID string) (bool, error) {
	active, err := u.ents.IsActive(ctx, userID, courseID, u.now())
	if err != nil {
		return false, persistErr("read entitlement", err)
	}
	return active, nil
}

func (u *enrollmentUC) enrollFree(ctx context.Context, r model.FreeEnroll) (*model.EnrollResult, error) {
	log := logging.With(ctx, u.log)
	course, err := u.courses.FindByID(ctx, repository.NoTX, r.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFree() {
		return nil, domain.ErrPaidCourse
	}
	active, err := u.activeEntitlement(ctx, r.UserID, r.CourseID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrAlreadyEnrolled
	}

	now := u.now().UTC()
	expiresAt := model.AddDays(now, course.Duration())
	if err := u.ents.GrantOrExtend(ctx, repository.NoTX, r.UserID, r.CourseID, expiresAt); err != nil {
		return nil, persistErr("grant entitlement", err)
	}

	// the entitlement is what grants access; the ledger row is bookkeeping
	sub, err := u.recordFree(ctx, r, expiresAt, now)
	if err != nil {
		log.Error().Err(err).Str("course_id", r.CourseID).Msg("free enrollment ledger write failed")
	}

	log.Info().Str("course_id", r.CourseID).Time("expires_at", expiresAt).Msg("free enrollment granted")
	u.mailer.send(ctx, r.UserID, course, "Enrollment Confirmed", []string{"You have been enrolled in this free course."}, &expiresAt)

	return &model.EnrollResult{
		Mode:         model.SubscriptionTypeFree,
		Subscription: sub,
		ExpiresAt:    &expiresAt,
		CourseTitle:  course.Title,
	}, nil
}

func (u *enrollmentUC) recordFree(ctx context.Context, r model.FreeEnroll, expiresAt, now time.Time) (*model.Subscription, error) {
	sub, err := model.NewSubscription(r.UserID, r.CourseID, model.SubscriptionTypeFree, model.SubscriptionStatusActive, 0, u.cfg.Currency)
	if err != nil {
		return nil, err
	}
	sub.ExpiresAt = &expiresAt
	sub.Metadata["source"] = "manual-free-enroll"
	sub.CreatedAt, sub.UpdatedAt = now, now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (u *enrollmentUC) initiateOneTime(ctx context.Context, r model.OneTimeInitiate) (*model.EnrollResult, error) {
	log := logging.With(ctx, u.log)
	course, err := u.courses.FindByID(ctx, repository.NoTX, r.CourseID)
	if err != nil {
		return nil, err
	}
	if course.Price <= 0 {
		return nil, fmt.Errorf("%w: course is free, use enroll", domain.ErrInvalidArgument)
	}
	active, err := u.activeEntitlement(ctx, r.UserID, r.CourseID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrAlreadyActive
	}

	now := u.now().UTC()
	receipt := "rcpt_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	order, err := u.gateway.CreateOrder(ctx, course.PriceMinor(), u.cfg.Currency, receipt)
	if err != nil {
		return nil, domain.NewGatewayError("create_order", err)
	}

	sub, err := model.NewSubscription(r.UserID, r.CourseID, model.SubscriptionTypeOneTime, model.SubscriptionStatusPending, course.Price, u.cfg.Currency)
	if err != nil {
		return nil, err
	}
	sub.OrderRef = order.ID
	sub.Metadata["receipt"] = receipt
	sub.CreatedAt, sub.UpdatedAt = now, now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Str("course_id", r.CourseID).Msg("order created but subscription not persisted")
		return nil, persistErr("save pending subscription", err)
	}

	log.Info().Str("order_id", order.ID).Int64("amount", order.AmountMinor).Msg("one-time order created")
	currency := order.Currency
	if currency == "" {
		currency = u.cfg.Currency
	}
	return &model.EnrollResult{
		Mode:         model.SubscriptionTypeOneTime,
		Subscription: sub,
		OrderID:      order.ID,
		AmountMinor:  order.AmountMinor,
		Currency:     currency,
		CourseTitle:  course.Title,
		KeyID:        u.cfg.KeyID,
	}, nil
}

// emiTerms is the resolved instalment plan for one EMI initiation.
type emiTerms struct {
	installments int
	perMinor     int64
	total        float64
	interest     float64
	name         string
	templateID   string
	planRef      string
}

func resolveEMITerms(course *model.Course, r model.EmiInitiate) (emiTerms, error) {
	t := emiTerms{planRef: r.PlanRef}

	var tpl *model.EMIPlanTemplate
	if r.PlanTemplate != "" {
		tpl = course.FindEMIPlan(r.PlanTemplate)
	}
	if tpl != nil && tpl.Installments > 0 {
		t.installments = tpl.Installments
		t.name = tpl.Name
		t.templateID = tpl.ID
		t.interest = tpl.InterestPercent
		switch {
		case tpl.PerInstallmentAmount > 0:
			t.perMinor = model.ToMinor(tpl.PerInstallmentAmount)
		case tpl.TotalAmount > 0:
			t.perMinor = int64(math.Round(tpl.TotalAmount * 100 / float64(tpl.Installments)))
		default:
			t.perMinor = int64(math.Round(course.Price * 100 / float64(tpl.Installments)))
		}
		t.total = tpl.TotalAmount
		if t.total == 0 {
			t.total = model.FromMinor(t.perMinor * int64(t.installments))
		}
		if t.planRef == "" {
			t.planRef = tpl.PlanRef
		}
		return t, nil
	}

	count := r.Installments
	if count == 0 {
		count = model.DefaultInstallments
	}
	if count < 1 || count > model.MaxInstallments {
		return t, fmt.Errorf("%w: installments must be between 1 and %d", domain.ErrInvalidArgument, model.MaxInstallments)
	}
	t.installments = count
	t.perMinor = int64(math.Round(course.Price * 100 / float64(count)))
	t.total = course.Price
	t.name = fmt.Sprintf("%d months", count)
	return t, nil
}

func (u *enrollmentUC) initiateEMI(ctx context.Context, r model.EmiInitiate) (*model.EnrollResult, error) {
	log := logging.With(ctx, u.log)
	course, err := u.courses.FindByID(ctx, repository.NoTX, r.CourseID)
	if err != nil {
		return nil, err
	}
	if course.Price <= 0 {
		return nil, fmt.Errorf("%w: course is free, use enroll", domain.ErrInvalidArgument)
	}
	active, err := u.activeEntitlement(ctx, r.UserID, r.CourseID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrAlreadyActive
	}
	terms, err := resolveEMITerms(course, r)
	if err != nil {
		return nil, err
	}
	if terms.perMinor <= 0 {
		return nil, fmt.Errorf("%w: instalment amount rounds to zero", domain.ErrInvalidArgument)
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, r.UserID)
	if err != nil {
		return nil, err
	}
	customerID, err := u.resolveCustomer(ctx, user)
	if err != nil {
		return nil, err
	}
	planID, err := u.resolvePlan(ctx, course, terms)
	if err != nil {
		return nil, err
	}

	rs, err := u.gateway.CreateRecurringSubscription(ctx, adapter.RecurringRequest{
		PlanID:         planID,
		TotalCount:     terms.installments,
		CustomerID:     customerID,
		CustomerNotify: true,
		Notes:          map[string]string{"course_id": course.ID, "user_id": user.ID},
	})
	if err != nil {
		return nil, domain.NewGatewayError("create_subscription", err)
	}

	now := u.now().UTC()
	status := model.SubscriptionStatusPending
	switch rs.Status {
	case "active":
		status = model.SubscriptionStatusActive
	case "completed":
		status = model.SubscriptionStatusCompleted
	}
	sub, err := model.NewSubscription(r.UserID, r.CourseID, model.SubscriptionTypeRecurring, status, course.Price, u.cfg.Currency)
	if err != nil {
		return nil, err
	}
	next := now.Add(model.RenewalPeriod)
	if rs.CurrentPeriodEnd != nil {
		next = rs.CurrentPeriodEnd.UTC()
	}
	sub.RecurringRef = rs.ID
	sub.PlanRef = planID
	sub.TotalCount = terms.installments
	sub.PaidCount = 0
	sub.NextPaymentAt = &next
	sub.EMI = &model.EMISnapshot{
		PlanName:            terms.name,
		Installments:        terms.installments,
		PerInstallmentMinor: terms.perMinor,
		TotalAmount:         terms.total,
		InterestPercent:     terms.interest,
		TemplateID:          terms.templateID,
	}
	sub.Metadata["customer_id"] = customerID
	sub.CreatedAt, sub.UpdatedAt = now, now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		log.Error().Err(err).
			Str("recurring_ref", rs.ID).
			Str("plan_id", planID).
			Str("course_id", r.CourseID).
			Msg("recurring subscription created but not persisted")
		return nil, persistErr("save emi subscription", err)
	}

	log.Info().Str("recurring_ref", rs.ID).Int("installments", terms.installments).Int64("per_installment", terms.perMinor).Msg("emi subscription created")
	return &model.EnrollResult{
		Mode:                model.SubscriptionTypeRecurring,
		Subscription:        sub,
		CourseTitle:         course.Title,
		KeyID:               u.cfg.KeyID,
		RecurringRef:        rs.ID,
		PlanRef:             planID,
		ShortURL:            rs.ShortURL,
		Installments:        terms.installments,
		PerInstallmentMinor: terms.perMinor,
		TotalAmount:         terms.total,
	}, nil
}

// resolveCustomer returns the user's gateway customer id, creating or
// looking it up as needed and caching it on the user.
func (u *enrollmentUC) resolveCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.GatewayCustomerID != "" {
		return user.GatewayCustomerID, nil
	}
	log := logging.With(ctx, u.log)

	var customerID string
	c, err := u.gateway.CreateCustomer(ctx, user.FullName(), user.Email)
	switch {
	case err == nil:
		customerID = c.ID
	case errors.Is(err, adapter.ErrCustomerExists):
		found, ferr := u.gateway.FindCustomerByEmail(ctx, user.Email)
		if ferr != nil {
			return "", domain.NewGatewayError("find_customer", ferr)
		}
		if found == nil {
			return "", &domain.GatewayError{Op: "find_customer", Description: "customer exists but could not be found by email"}
		}
		customerID = found.ID
	default:
		return "", domain.NewGatewayError("create_customer", err)
	}

	if err := u.users.SetGatewayCustomerID(ctx, repository.NoTX, user.ID, customerID); err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("could not cache gateway customer id")
	}
	user.GatewayCustomerID = customerID
	return customerID, nil
}

// resolvePlan reuses an existing gateway plan only when its amount matches.
func (u *enrollmentUC) resolvePlan(ctx context.Context, course *model.Course, t emiTerms) (string, error) {
	log := logging.With(ctx, u.log)
	if t.planRef != "" {
		p, err := u.gateway.FetchPlan(ctx, t.planRef)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("plan_id", t.planRef).Msg("plan lookup failed, creating a new plan")
		case p == nil:
			log.Warn().Str("plan_id", t.planRef).Msg("plan not found, creating a new plan")
		case p.AmountMinor != t.perMinor:
			log.Warn().Str("plan_id", t.planRef).Int64("plan_amount", p.AmountMinor).Int64("expected", t.perMinor).Msg("plan amount mismatch, creating a new plan")
		default:
			return p.ID, nil
		}
	}

	p, err := u.gateway.CreatePlan(ctx, adapter.PlanRequest{
		Period:      adapter.PlanPeriodMonthly,
		Interval:    1,
		Name:        course.Title + " - EMI",
		AmountMinor: t.perMinor,
		Currency:    u.cfg.Currency,
		Description: fmt.Sprintf("%d monthly instalments", t.installments),
	})
	if err != nil {
		return "", domain.NewGatewayError("create_plan", err)
	}
	return p.ID, nil
}
