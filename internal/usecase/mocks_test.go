//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func testReconcileConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		PollInterval:    10 * time.Second,
		PollTTL:         15 * time.Minute,
		PollMaxAttempts: 5,
		NotFoundRetries: 3,
		RetryInterval:   5 * time.Minute,
		RetryBatch:      10,
		AttemptBudget:   5,
		BackoffSchedule: []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour},

		LifecycleInterval: time.Hour,
		LifecycleBatch:    100,
		SweepWorkers:      2,
		WarnBefore3:       72 * time.Hour,
		WarnBefore1:       24 * time.Hour,
		DeleteWarn1:       72 * time.Hour,
		DeleteWarn2:       144 * time.Hour,
		RetentionWindow:   168 * time.Hour,
	}
}

// ---- Mock TransactionManager ----

type MockTxManager struct{}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	store map[string]*model.Payment

	SaveErr                  error
	UpdateStatusIfPendingErr error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{store: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Save(ctx context.Context, _ repository.Tx, p *model.Payment) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByExternalID(ctx context.Context, _ repository.Tx, externalID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, _ repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if m.UpdateStatusIfPendingErr != nil {
		return false, m.UpdateStatusIfPendingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepo) SetSubscriptionID(ctx context.Context, _ repository.Tx, id, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (m *MockPaymentRepo) ListPending(ctx context.Context, _ repository.Tx, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu    sync.Mutex
	store map[string]*model.Subscription

	SaveErr error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: map[string]*model.Subscription{}}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, _ repository.Tx, s *model.Subscription) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindByOwner(ctx context.Context, _ repository.Tx, ownerID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.OwnerID == ownerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListSweepable(ctx context.Context, _ repository.Tx, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.store {
		// deliberately leaks non-expiring rows so tests cover the use
		// case's own guard
		if s.Status == model.SubscriptionStatusPaused {
			continue
		}
		if len(out) < limit {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) Delete(ctx context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MockSubscriptionRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func (m *MockSubscriptionRepo) Any() *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		cp := *s
		return &cp
	}
	return nil
}

// ---- Mock TariffRepository ----

type MockTariffRepo struct {
	mu    sync.Mutex
	store map[string]*model.Tariff
}

var _ repository.TariffRepository = (*MockTariffRepo)(nil)

func NewMockTariffRepo(ts ...*model.Tariff) *MockTariffRepo {
	m := &MockTariffRepo{store: map[string]*model.Tariff{}}
	for _, t := range ts {
		m.store[t.ID] = t
	}
	return m
}

func (m *MockTariffRepo) Save(ctx context.Context, _ repository.Tx, t *model.Tariff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *MockTariffRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Tariff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTariffRepo) ListAll(ctx context.Context, _ repository.Tx) ([]*model.Tariff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Tariff
	for _, t := range m.store {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Mock RetryRepository ----

// MockRetryRepo mirrors the partial-unique-index behavior of the real
// store: at most one open entry per payment.
type MockRetryRepo struct {
	mu    sync.Mutex
	store map[string]*model.RetryEntry

	MarkProcessingResult *bool // forced result when set
}

var _ repository.RetryRepository = (*MockRetryRepo)(nil)

func NewMockRetryRepo() *MockRetryRepo {
	return &MockRetryRepo{store: map[string]*model.RetryEntry{}}
}

func (m *MockRetryRepo) UpsertOpen(ctx context.Context, _ repository.Tx, e *model.RetryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.store {
		if cur.PaymentID == e.PaymentID && cur.Status.Open() {
			cur.LastError = e.LastError
			cur.NextAttemptAt = e.NextAttemptAt
			cur.Status = model.RetryStatusPending
			cur.UpdatedAt = e.UpdatedAt
			return nil
		}
	}
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MockRetryRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockRetryRepo) FindOpenByPayment(ctx context.Context, _ repository.Tx, paymentID string) (*model.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.store {
		if e.PaymentID == paymentID && e.Status.Open() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRetryRepo) ListDue(ctx context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RetryEntry
	for _, e := range m.store {
		if e.Status == model.RetryStatusPending && !e.NextAttemptAt.After(now) && len(out) < limit {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRetryRepo) MarkProcessing(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	if m.MarkProcessingResult != nil {
		return *m.MarkProcessingResult, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok || e.Status != model.RetryStatusPending {
		return false, nil
	}
	e.Status = model.RetryStatusProcessing
	return true, nil
}

func (m *MockRetryRepo) Update(ctx context.Context, _ repository.Tx, e *model.RetryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[e.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MockRetryRepo) CountOpen(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.store {
		if e.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (m *MockRetryRepo) ByPayment(paymentID string) []*model.RetryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RetryEntry
	for _, e := range m.store {
		if e.PaymentID == paymentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// ---- Mock CheckStateRepository ----

type MockCheckState struct {
	mu       sync.Mutex
	attempts map[string]int64
	misses   map[string]int64
}

var _ repository.CheckStateRepository = (*MockCheckState)(nil)

func NewMockCheckState() *MockCheckState {
	return &MockCheckState{attempts: map[string]int64{}, misses: map[string]int64{}}
}

func (m *MockCheckState) Init(ctx context.Context, paymentID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[paymentID] = 0
	return nil
}

func (m *MockCheckState) Bump(ctx context.Context, paymentID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[paymentID]; !ok {
		return 0, false, nil
	}
	m.attempts[paymentID]++
	return m.attempts[paymentID], true, nil
}

func (m *MockCheckState) BumpNotFound(ctx context.Context, paymentID string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[paymentID]++
	return m.misses[paymentID], nil
}

func (m *MockCheckState) Clear(ctx context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, paymentID)
	delete(m.misses, paymentID)
	return nil
}

func (m *MockCheckState) Exists(paymentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.attempts[paymentID]
	return ok
}

// SetAttempts pre-positions the counter so a test can start mid-window.
func (m *MockCheckState) SetAttempts(paymentID string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[paymentID] = n
}

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu sync.Mutex

	CreateCheckoutFunc func(ctx context.Context, amountMinor int64, currency, description, ownerRef string) (*adapter.Checkout, error)
	GetStatusFunc      func(ctx context.Context, externalID string) (adapter.CheckoutStatus, error)
	RefundFunc         func(ctx context.Context, externalID string, amountMinor int64, currency, reason string) (*adapter.Refund, error)

	RefundCalls []struct {
		ExternalID  string
		AmountMinor int64
		Currency    string
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateCheckout(ctx context.Context, amountMinor int64, currency, description, ownerRef string) (*adapter.Checkout, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, amountMinor, currency, description, ownerRef)
	}
	return &adapter.Checkout{ExternalID: "ext-1", RedirectURL: "https://pay.example/ext-1"}, nil
}

func (m *MockGateway) GetStatus(ctx context.Context, externalID string) (adapter.CheckoutStatus, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, externalID)
	}
	return adapter.CheckoutStatusPending, nil
}

func (m *MockGateway) RefundPayment(ctx context.Context, externalID string, amountMinor int64, currency, reason string) (*adapter.Refund, error) {
	m.mu.Lock()
	m.RefundCalls = append(m.RefundCalls, struct {
		ExternalID  string
		AmountMinor int64
		Currency    string
	}{externalID, amountMinor, currency})
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, externalID, amountMinor, currency, reason)
	}
	return &adapter.Refund{Reference: "refund-1"}, nil
}

func (m *MockGateway) RefundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RefundCalls)
}

// ---- Mock ProvisioningClient ----

type MockPanel struct {
	mu sync.Mutex

	ProvisionFunc  func(ctx context.Context, ownerRef, targetID string, duration time.Duration) (*adapter.Provisioned, error)
	RenewFunc      func(ctx context.Context, targetID, externalClientID string, duration time.Duration) error
	SetEnabledFunc func(ctx context.Context, targetID, externalClientID string, enabled bool) error
	RevokeFunc     func(ctx context.Context, targetID, externalClientID string) error

	Calls struct {
		Provision int
		Renew     int
		Enable    int
		Disable   int
		Revoke    int
	}
}

var _ adapter.ProvisioningClient = (*MockPanel)(nil)

func (m *MockPanel) Provision(ctx context.Context, ownerRef, targetID string, duration time.Duration) (*adapter.Provisioned, error) {
	m.mu.Lock()
	m.Calls.Provision++
	m.mu.Unlock()
	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx, ownerRef, targetID, duration)
	}
	return &adapter.Provisioned{ExternalClientID: "client-1", AccessDescriptor: "vless://client-1@panel"}, nil
}

func (m *MockPanel) Renew(ctx context.Context, targetID, externalClientID string, duration time.Duration) error {
	m.mu.Lock()
	m.Calls.Renew++
	m.mu.Unlock()
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, targetID, externalClientID, duration)
	}
	return nil
}

func (m *MockPanel) SetEnabled(ctx context.Context, targetID, externalClientID string, enabled bool) error {
	m.mu.Lock()
	if enabled {
		m.Calls.Enable++
	} else {
		m.Calls.Disable++
	}
	m.mu.Unlock()
	if m.SetEnabledFunc != nil {
		return m.SetEnabledFunc(ctx, targetID, externalClientID, enabled)
	}
	return nil
}

func (m *MockPanel) Revoke(ctx context.Context, targetID, externalClientID string) error {
	m.mu.Lock()
	m.Calls.Revoke++
	m.mu.Unlock()
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, targetID, externalClientID)
	}
	return nil
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent map[int64][]string

	SendErr error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Sent: map[int64][]string{}}
}

func (m *MockNotifier) Send(ctx context.Context, chatID int64, text string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent[chatID] = append(m.Sent[chatID], text)
	return nil
}

func (m *MockNotifier) CountFor(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent[chatID])
}

// ---- Mock CheckScheduler ----

type MockCheckScheduler struct {
	mu        sync.Mutex
	Scheduled []string
	Canceled  []string
}

var _ CheckScheduler = (*MockCheckScheduler)(nil)

func (m *MockCheckScheduler) Schedule(paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, paymentID)
}

func (m *MockCheckScheduler) Cancel(paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Canceled = append(m.Canceled, paymentID)
}
