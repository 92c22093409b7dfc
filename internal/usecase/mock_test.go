//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fixedClock returns a settable clock for WithClock.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func entKey(userID, courseID string) string { return userID + "|" + courseID }

func cloneSub(s *model.Subscription) *model.Subscription {
	cp := *s
	cp.PaymentHistory = append([]model.PaymentHistoryEntry(nil), s.PaymentHistory...)
	cp.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	if s.EMI != nil {
		emi := *s.EMI
		cp.EMI = &emi
	}
	return &cp
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu sync.Mutex

	CreateOrderFunc         func(ctx context.Context, amountMinor int64, currency, receipt string) (adapter.Order, error)
	CreatePlanFunc          func(ctx context.Context, req adapter.PlanRequest) (adapter.Plan, error)
	FetchPlanFunc           func(ctx context.Context, id string) (*adapter.Plan, error)
	CreateRecurringFunc     func(ctx context.Context, req adapter.RecurringRequest) (adapter.RecurringSubscription, error)
	CancelRecurringFunc     func(ctx context.Context, id string) error
	CreateCustomerFunc      func(ctx context.Context, name, email string) (adapter.Customer, error)
	FindCustomerByEmailFunc func(ctx context.Context, email string) (*adapter.Customer, error)

	Calls struct {
		Orders     []int64
		Receipts   []string
		Plans      []adapter.PlanRequest
		Recurring  []adapter.RecurringRequest
		Cancelled  []string
		Customers  []string
		FetchPlans []string
	}
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (adapter.Order, error) {
	m.mu.Lock()
	m.Calls.Orders = append(m.Calls.Orders, amountMinor)
	m.Calls.Receipts = append(m.Calls.Receipts, receipt)
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, amountMinor, currency, receipt)
	}
	return adapter.Order{ID: "order_" + uuid.NewString()[:8], AmountMinor: amountMinor, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (m *MockPaymentGateway) CreatePlan(ctx context.Context, req adapter.PlanRequest) (adapter.Plan, error) {
	m.mu.Lock()
	m.Calls.Plans = append(m.Calls.Plans, req)
	m.mu.Unlock()
	if m.CreatePlanFunc != nil {
		return m.CreatePlanFunc(ctx, req)
	}
	return adapter.Plan{ID: "plan_new", Period: req.Period, Interval: req.Interval, Name: req.Name, AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (m *MockPaymentGateway) FetchPlan(ctx context.Context, id string) (*adapter.Plan, error) {
	m.mu.Lock()
	m.Calls.FetchPlans = append(m.Calls.FetchPlans, id)
	m.mu.Unlock()
	if m.FetchPlanFunc != nil {
		return m.FetchPlanFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPaymentGateway) CreateRecurringSubscription(ctx context.Context, req adapter.RecurringRequest) (adapter.RecurringSubscription, error) {
	m.mu.Lock()
	m.Calls.Recurring = append(m.Calls.Recurring, req)
	m.mu.Unlock()
	if m.CreateRecurringFunc != nil {
		return m.CreateRecurringFunc(ctx, req)
	}
	return adapter.RecurringSubscription{ID: "sub_gw_1", PlanID: req.PlanID, Status: "created", TotalCount: req.TotalCount, ShortURL: "https://pay.example/sub_gw_1"}, nil
}

func (m *MockPaymentGateway) CancelRecurringSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	m.Calls.Cancelled = append(m.Calls.Cancelled, id)
	m.mu.Unlock()
	if m.CancelRecurringFunc != nil {
		return m.CancelRecurringFunc(ctx, id)
	}
	return nil
}

func (m *MockPaymentGateway) CreateCustomer(ctx context.Context, name, email string) (adapter.Customer, error) {
	m.mu.Lock()
	m.Calls.Customers = append(m.Calls.Customers, email)
	m.mu.Unlock()
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, name, email)
	}
	return adapter.Customer{ID: "cust_1", Name: name, Email: email}, nil
}

func (m *MockPaymentGateway) FindCustomerByEmail(ctx context.Context, email string) (*adapter.Customer, error) {
	if m.FindCustomerByEmailFunc != nil {
		return m.FindCustomerByEmailFunc(ctx, email)
	}
	return nil, nil
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu       sync.Mutex
	Sent     []adapter.Notification
	SendFunc func(ctx context.Context, n adapter.Notification) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Send(ctx context.Context, n adapter.Notification) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, n)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, n)
	}
	return nil
}

func (m *MockNotifier) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Sent))
	for _, n := range m.Sent {
		out = append(out, n.Subject)
	}
	return out
}

// ---- Mock Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrEnrollmentInProgress
	}
	tok := uuid.NewString()
	m.held[key] = tok
	return tok, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	SetGatewayCustomerIDFunc func(ctx context.Context, tx repository.Tx, userID, customerID string) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	m := &MockUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) SetGatewayCustomerID(ctx context.Context, tx repository.Tx, userID, customerID string) error {
	if m.SetGatewayCustomerIDFunc != nil {
		return m.SetGatewayCustomerIDFunc(ctx, tx, userID, customerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.GatewayCustomerID = customerID
	return nil
}

// ---- Mock CourseRepository ----

type MockCourseRepo struct {
	mu      sync.Mutex
	courses map[string]*model.Course
}

var _ repository.CourseRepository = (*MockCourseRepo)(nil)

func NewMockCourseRepo(courses ...*model.Course) *MockCourseRepo {
	m := &MockCourseRepo{courses: map[string]*model.Course{}}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return m
}

func (m *MockCourseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	return nil
}

func (m *MockCourseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *MockCourseRepo) FindTitles(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			out[id] = c.Title
		}
	}
	return out, nil
}

// ---- Mock EntitlementRepository ----

type MockEntitlementRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Entitlement

	UpsertFunc func(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt, now time.Time) error
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{rows: map[string]*model.Entitlement{}}
}

func (m *MockEntitlementRepo) Upsert(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt, now time.Time) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, userID, courseID, expiresAt, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[entKey(userID, courseID)] = &model.Entitlement{UserID: userID, CourseID: courseID, SubscribedAt: now, ExpiresAt: expiresAt}
	return nil
}

func (m *MockEntitlementRepo) Delete(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, entKey(userID, courseID))
	return nil
}

func (m *MockEntitlementRepo) Find(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[entKey(userID, courseID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEntitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Entitlement
	for _, e := range m.rows {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Len returns the number of stored entitlement rows.
func (m *MockEntitlementRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription

	SaveFunc          func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	CountByStatusFunc func(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error)
	Saves             int
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: map[string]*model.Subscription{}}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	m.subs[s.ID] = cloneSub(s)
	return nil
}

func (m *MockSubscriptionRepo) find(match func(*model.Subscription) bool) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if match(s) {
			return cloneSub(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return m.find(func(s *model.Subscription) bool { return s.ID == id })
}

func (m *MockSubscriptionRepo) FindByRecurringRef(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	return m.find(func(s *model.Subscription) bool { return s.RecurringRef != "" && s.RecurringRef == ref })
}

func (m *MockSubscriptionRepo) FindOneTimeByOrder(ctx context.Context, tx repository.Tx, userID, courseID, orderRef string) (*model.Subscription, error) {
	return m.find(func(s *model.Subscription) bool {
		return s.UserID == userID && s.CourseID == courseID && s.Type == model.SubscriptionTypeOneTime && s.OrderRef == orderRef
	})
}

func (m *MockSubscriptionRepo) list(match func(*model.Subscription) bool) []*model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if match(s) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	return m.list(func(s *model.Subscription) bool { return s.UserID == userID }), nil
}

func (m *MockSubscriptionRepo) ListAll(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Subscription, error) {
	all := m.list(func(*model.Subscription) bool { return true })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.Status != model.SubscriptionStatusActive || s.ExpiresAt == nil || s.ExpiresAt.After(now) {
			continue
		}
		if s.Type == model.SubscriptionTypeFree || s.Type == model.SubscriptionTypeOneTime {
			s.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range m.subs {
		out[s.Status]++
	}
	return out, nil
}

// All returns every stored subscription.
func (m *MockSubscriptionRepo) All() []*model.Subscription {
	return m.list(func(*model.Subscription) bool { return true })
}

// Put stores s as-is, bypassing SaveFunc.
func (m *MockSubscriptionRepo) Put(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = cloneSub(s)
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment

	AppendFunc      func(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error)
	SumByPeriodFunc func(ctx context.Context, tx repository.Tx, period string) (int64, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Append(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.GatewayPaymentID]; ok {
		return false, nil
	}
	cp := *p
	m.payments[p.GatewayPaymentID] = &cp
	return true, nil
}

func (m *MockPaymentRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) records(match func(*model.Payment) bool) []*model.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentRecord
	for _, p := range m.payments {
		if match(p) {
			out = append(out, &model.PaymentRecord{Payment: *p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentRecord, error) {
	return m.records(func(p *model.Payment) bool { return p.UserID == userID }), nil
}

func (m *MockPaymentRepo) ListAll(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.PaymentRecord, error) {
	return m.records(func(*model.Payment) bool { return true }), nil
}

func (m *MockPaymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if m.SumByPeriodFunc != nil {
		return m.SumByPeriodFunc(ctx, tx, period)
	}
	switch period {
	case "week", "month", "year":
	default:
		return 0, fmt.Errorf("%w: period %q", domain.ErrInvalidArgument, period)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.payments {
		sum += p.AmountMinor
	}
	return sum, nil
}

// Len returns the number of stored receipts.
func (m *MockPaymentRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}
