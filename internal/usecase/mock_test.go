//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-market-billing/internal/config"
	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/adapter"
	"telegram-market-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// fastBilling returns a billing config with all delays collapsed so poll and
// retry loops run instantly under test.
func fastBilling() config.BillingConfig {
	return config.BillingConfig{
		Timezone:            "Europe/Kyiv",
		PollAttempts:        5,
		PollSettleDelay:     time.Nanosecond,
		PollBackoffStep:     time.Nanosecond,
		PollBackoffCap:      time.Nanosecond,
		PendingWindow:       24 * time.Hour,
		SweepGrace:          5 * time.Minute,
		SweepLimit:          20,
		MaxProcessingAge:    48 * time.Hour,
		TokenSearchAttempts: 3,
		TokenSearchDelay:    time.Nanosecond,
	}
}

// =============================
// Adapters
// =============================

// ---- Mock NotificationSink ----

type sentMessage struct {
	Recipient int64
	Text      string
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentMessage

	SendFunc func(ctx context.Context, recipientID int64, text string) error
}

var _ adapter.NotificationSink = (*MockNotifier)(nil)

func (m *MockNotifier) Send(ctx context.Context, recipientID int64, text string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, recipientID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{Recipient: recipientID, Text: text})
	return nil
}

func (m *MockNotifier) SentTo(recipientID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Sent {
		if s.Recipient == recipientID {
			out = append(out, s.Text)
		}
	}
	return out
}

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu sync.Mutex

	CreateInvoiceFunc          func(ctx context.Context, req adapter.InvoiceRequest) (adapter.CreatedInvoice, error)
	CreateTokenizedInvoiceFunc func(ctx context.Context, req adapter.InvoiceRequest) (adapter.TokenizedInvoice, error)
	ChargeTokenFunc            func(ctx context.Context, walletID, cardToken string, req adapter.InvoiceRequest) (adapter.TokenCharge, error)
	InvoiceStatusFunc          func(ctx context.Context, invoiceID string) (adapter.StatusResult, error)
	WalletCardsFunc            func(ctx context.Context, walletID string) ([]adapter.WalletCard, error)
	CancelInvoiceFunc          func(ctx context.Context, invoiceID string) error

	Calls struct {
		Charges       int
		StatusQueries int
		WalletCards   int
		Cancels       int
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (adapter.CreatedInvoice, error) {
	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, req)
	}
	return adapter.CreatedInvoice{OrderRef: "order_test", InvoiceID: "inv-1", PayURL: "https://pay.example/1"}, nil
}

func (m *MockGateway) CreateTokenizedInvoice(ctx context.Context, req adapter.InvoiceRequest) (adapter.TokenizedInvoice, error) {
	if m.CreateTokenizedInvoiceFunc != nil {
		return m.CreateTokenizedInvoiceFunc(ctx, req)
	}
	return adapter.TokenizedInvoice{
		CreatedInvoice: adapter.CreatedInvoice{OrderRef: "sub_test", InvoiceID: "inv-2", PayURL: "https://pay.example/2"},
		WalletID:       "wallet_test",
	}, nil
}

func (m *MockGateway) ChargeToken(ctx context.Context, walletID, cardToken string, req adapter.InvoiceRequest) (adapter.TokenCharge, error) {
	m.mu.Lock()
	m.Calls.Charges++
	m.mu.Unlock()
	if m.ChargeTokenFunc != nil {
		return m.ChargeTokenFunc(ctx, walletID, cardToken, req)
	}
	return adapter.TokenCharge{OrderRef: "charge_test", InvoiceID: "inv-3"}, nil
}

func (m *MockGateway) InvoiceStatus(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
	m.mu.Lock()
	m.Calls.StatusQueries++
	m.mu.Unlock()
	if m.InvoiceStatusFunc != nil {
		return m.InvoiceStatusFunc(ctx, invoiceID)
	}
	return adapter.StatusResult{InvoiceID: invoiceID, Status: adapter.InvoiceStatusSuccess}, nil
}

func (m *MockGateway) WalletCards(ctx context.Context, walletID string) ([]adapter.WalletCard, error) {
	m.mu.Lock()
	m.Calls.WalletCards++
	m.mu.Unlock()
	if m.WalletCardsFunc != nil {
		return m.WalletCardsFunc(ctx, walletID)
	}
	return nil, nil
}

func (m *MockGateway) CancelInvoice(ctx context.Context, invoiceID string) error {
	m.mu.Lock()
	m.Calls.Cancels++
	m.mu.Unlock()
	if m.CancelInvoiceFunc != nil {
		return m.CancelInvoiceFunc(ctx, invoiceID)
	}
	return nil
}

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the callback immediately with NoTX unless overridden.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu       sync.Mutex
	Users    map[int64]*model.User
	Balances map[int64]float64

	SaveFunc                 func(ctx context.Context, qx repository.Tx, u *model.User) error
	FindByTgIDFunc           func(ctx context.Context, qx repository.Tx, tgID int64) (*model.User, error)
	ReferrerOfFunc           func(ctx context.Context, qx repository.Tx, tgID int64) (*int64, error)
	PartnerBalanceFunc       func(ctx context.Context, qx repository.Tx, tgID int64) (float64, error)
	CreditPartnerBalanceFunc func(ctx context.Context, qx repository.Tx, tgID int64, amount float64) error
	DebitPartnerBalanceFunc  func(ctx context.Context, qx repository.Tx, tgID int64, amount float64) (bool, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{Users: map[int64]*model.User{}, Balances: map[int64]float64{}}
}

func (m *MockUserRepo) Save(ctx context.Context, qx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[u.TgID] = u
	return nil
}

func (m *MockUserRepo) FindByTgID(ctx context.Context, qx repository.Tx, tgID int64) (*model.User, error) {
	if m.FindByTgIDFunc != nil {
		return m.FindByTgIDFunc(ctx, qx, tgID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *MockUserRepo) ReferrerOf(ctx context.Context, qx repository.Tx, tgID int64) (*int64, error) {
	if m.ReferrerOfFunc != nil {
		return m.ReferrerOfFunc(ctx, qx, tgID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.RefID, nil
}

func (m *MockUserRepo) PartnerBalance(ctx context.Context, qx repository.Tx, tgID int64) (float64, error) {
	if m.PartnerBalanceFunc != nil {
		return m.PartnerBalanceFunc(ctx, qx, tgID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[tgID], nil
}

func (m *MockUserRepo) CreditPartnerBalance(ctx context.Context, qx repository.Tx, tgID int64, amount float64) error {
	if m.CreditPartnerBalanceFunc != nil {
		return m.CreditPartnerBalanceFunc(ctx, qx, tgID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Balances[tgID] += amount
	return nil
}

func (m *MockUserRepo) DebitPartnerBalance(ctx context.Context, qx repository.Tx, tgID int64, amount float64) (bool, error) {
	if m.DebitPartnerBalanceFunc != nil {
		return m.DebitPartnerBalanceFunc(ctx, qx, tgID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Balances[tgID] < amount {
		return false, nil
	}
	m.Balances[tgID] -= amount
	return true, nil
}

// ---- Mock ProductRepository ----

type MockProductRepo struct {
	mu       sync.Mutex
	Products map[string]*model.Product

	FindByIDFunc func(ctx context.Context, qx repository.Tx, id string) (*model.Product, error)
}

var _ repository.ProductRepository = (*MockProductRepo)(nil)

func NewMockProductRepo() *MockProductRepo {
	return &MockProductRepo{Products: map[string]*model.Product{}}
}

func (m *MockProductRepo) Save(ctx context.Context, qx repository.Tx, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Products[p.ID] = p
	return nil
}

func (m *MockProductRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Product, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *MockProductRepo) List(ctx context.Context, qx repository.Tx) ([]*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Product
	for _, p := range m.Products {
		out = append(out, p)
	}
	return out, nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu       sync.Mutex
	Payments map[string]*model.Payment // by id

	SaveFunc                  func(ctx context.Context, qx repository.Tx, p *model.Payment) error
	ListPendingSinceFunc      func(ctx context.Context, qx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error)
	UpdateStatusIfPendingFunc func(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{Payments: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByInvoiceID(ctx context.Context, qx repository.Tx, invoiceID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.InvoiceID == invoiceID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) ListPendingSince(ctx context.Context, qx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error) {
	if m.ListPendingSinceFunc != nil {
		return m.ListPendingSinceFunc(ctx, qx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.Payments {
		if p.Status == model.PaymentStatusPending && !p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, qx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	return true, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	Subs []*model.Subscription

	SaveFunc               func(ctx context.Context, qx repository.Tx, s *model.Subscription) error
	FindExpiringWithinFunc func(ctx context.Context, qx repository.Tx, withinDays int) ([]*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) Save(ctx context.Context, qx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subs = append(m.Subs, s)
	return nil
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, qx repository.Tx, userID int64) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.Subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) FindExpiringWithin(ctx context.Context, qx repository.Tx, withinDays int) ([]*model.Subscription, error) {
	if m.FindExpiringWithinFunc != nil {
		return m.FindExpiringWithinFunc(ctx, qx, withinDays)
	}
	return nil, nil
}

// ---- Mock RecurringSubscriptionRepository ----

type MockRecurringRepo struct {
	mu   sync.Mutex
	Subs map[string]*model.RecurringSubscription

	ListDueFunc           func(ctx context.Context, qx repository.Tx, now time.Time) ([]*model.RecurringSubscription, error)
	AdvanceNextPaymentFun func(ctx context.Context, qx repository.Tx, id string, months int) error
	IncrementFailuresFunc func(ctx context.Context, qx repository.Tx, id string) (int, error)
	DeactivateFunc        func(ctx context.Context, qx repository.Tx, id string) error

	Calls struct {
		Advanced    []string
		Deactivated []string
	}
}

var _ repository.RecurringSubscriptionRepository = (*MockRecurringRepo)(nil)

func NewMockRecurringRepo() *MockRecurringRepo {
	return &MockRecurringRepo{Subs: map[string]*model.RecurringSubscription{}}
}

func (m *MockRecurringRepo) Save(ctx context.Context, qx repository.Tx, s *model.RecurringSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.Subs[s.ID] = &cp
	return nil
}

func (m *MockRecurringRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.RecurringSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *MockRecurringRepo) ListByUser(ctx context.Context, qx repository.Tx, userID int64) ([]*model.RecurringSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RecurringSubscription
	for _, s := range m.Subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockRecurringRepo) ListDue(ctx context.Context, qx repository.Tx, now time.Time) ([]*model.RecurringSubscription, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, qx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RecurringSubscription
	for _, s := range m.Subs {
		if s.Status == model.RecurringStatusActive && !s.NextPaymentDate.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockRecurringRepo) AdvanceNextPayment(ctx context.Context, qx repository.Tx, id string, months int) error {
	if m.AdvanceNextPaymentFun != nil {
		return m.AdvanceNextPaymentFun(ctx, qx, id, months)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.NextPaymentDate = time.Now().AddDate(0, 0, 30*months)
	m.Calls.Advanced = append(m.Calls.Advanced, id)
	return nil
}

func (m *MockRecurringRepo) IncrementFailures(ctx context.Context, qx repository.Tx, id string) (int, error) {
	if m.IncrementFailuresFunc != nil {
		return m.IncrementFailuresFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subs[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	s.PaymentFailures++
	return s.PaymentFailures, nil
}

func (m *MockRecurringRepo) Deactivate(ctx context.Context, qx repository.Tx, id string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = model.RecurringStatusInactive
	m.Calls.Deactivated = append(m.Calls.Deactivated, id)
	return nil
}

func (m *MockRecurringRepo) CountActive(ctx context.Context, qx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Subs {
		if s.Status == model.RecurringStatusActive {
			n++
		}
	}
	return n, nil
}

// ---- Mock SubscriptionPaymentRepository ----

type MockChargeRepo struct {
	mu      sync.Mutex
	Charges map[string]*model.SubscriptionPayment

	SaveFunc               func(ctx context.Context, qx repository.Tx, p *model.SubscriptionPayment) error
	FinalizeProcessingFunc func(ctx context.Context, qx repository.Tx, id string, status model.ChargeStatus, errMsg string, paidAt *time.Time) (bool, error)
}

var _ repository.SubscriptionPaymentRepository = (*MockChargeRepo)(nil)

func NewMockChargeRepo() *MockChargeRepo {
	return &MockChargeRepo{Charges: map[string]*model.SubscriptionPayment{}}
}

func (m *MockChargeRepo) Save(ctx context.Context, qx repository.Tx, p *model.SubscriptionPayment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Charges[p.ID] = &cp
	return nil
}

func (m *MockChargeRepo) ListProcessingOlderThan(ctx context.Context, qx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SubscriptionPayment
	for _, c := range m.Charges {
		if c.Status == model.ChargeStatusProcessing && c.CreatedAt.Before(cutoff) {
			out = append(out, c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockChargeRepo) FinalizeProcessing(ctx context.Context, qx repository.Tx, id string, status model.ChargeStatus, errMsg string, paidAt *time.Time) (bool, error) {
	if m.FinalizeProcessingFunc != nil {
		return m.FinalizeProcessingFunc(ctx, qx, id, status, errMsg, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Charges[id]
	if !ok || c.Status != model.ChargeStatusProcessing {
		return false, nil
	}
	c.Status = status
	c.ErrorMessage = errMsg
	if paidAt != nil {
		c.PaidAt = paidAt
	}
	return true, nil
}

func (m *MockChargeRepo) CountByStatusSince(ctx context.Context, qx repository.Tx, status model.ChargeStatus, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Charges {
		if c.Status == status && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockChargeRepo) SumSuccessSince(ctx context.Context, qx repository.Tx, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, c := range m.Charges {
		if c.Status == model.ChargeStatusSuccess && !c.CreatedAt.Before(since) {
			sum += c.Amount
		}
	}
	return sum, nil
}

// ByStatus returns charge records with the given status.
func (m *MockChargeRepo) ByStatus(status model.ChargeStatus) []*model.SubscriptionPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SubscriptionPayment
	for _, c := range m.Charges {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// ---- Mock CardTokenRepository ----

type MockTokenRepo struct {
	mu     sync.Mutex
	Tokens map[int64]*model.CardToken

	FindByUserIDFunc func(ctx context.Context, qx repository.Tx, userID int64) (*model.CardToken, error)
}

var _ repository.CardTokenRepository = (*MockTokenRepo)(nil)

func NewMockTokenRepo() *MockTokenRepo {
	return &MockTokenRepo{Tokens: map[int64]*model.CardToken{}}
}

func (m *MockTokenRepo) Upsert(ctx context.Context, qx repository.Tx, t *model.CardToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens[t.UserID] = t
	return nil
}

func (m *MockTokenRepo) FindByUserID(ctx context.Context, qx repository.Tx, userID int64) (*model.CardToken, error) {
	if m.FindByUserIDFunc != nil {
		return m.FindByUserIDFunc(ctx, qx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tokens[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (m *MockTokenRepo) DeleteByUserID(ctx context.Context, qx repository.Tx, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Tokens, userID)
	return nil
}

// ---- Mock PartnerRepository ----

type MockPartnerRepo struct {
	mu       sync.Mutex
	Percent  float64
	Earnings []*model.PartnerEarning

	ReferralPercentFunc func(ctx context.Context, qx repository.Tx) (float64, error)
	SaveEarningFunc     func(ctx context.Context, qx repository.Tx, e *model.PartnerEarning) error
}

var _ repository.PartnerRepository = (*MockPartnerRepo)(nil)

func NewMockPartnerRepo(percent float64) *MockPartnerRepo {
	return &MockPartnerRepo{Percent: percent}
}

func (m *MockPartnerRepo) ReferralPercent(ctx context.Context, qx repository.Tx) (float64, error) {
	if m.ReferralPercentFunc != nil {
		return m.ReferralPercentFunc(ctx, qx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Percent, nil
}

func (m *MockPartnerRepo) SetReferralPercent(ctx context.Context, qx repository.Tx, percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Percent = percent
	return nil
}

func (m *MockPartnerRepo) SaveEarning(ctx context.Context, qx repository.Tx, e *model.PartnerEarning) error {
	if m.SaveEarningFunc != nil {
		return m.SaveEarningFunc(ctx, qx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Earnings = append(m.Earnings, e)
	return nil
}

func (m *MockPartnerRepo) EarningsByPartner(ctx context.Context, qx repository.Tx, partnerID int64, limit int) ([]*model.PartnerEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PartnerEarning
	for _, e := range m.Earnings {
		if e.PartnerID == partnerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockPartnerRepo) TotalEarned(ctx context.Context, qx repository.Tx, partnerID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, e := range m.Earnings {
		if e.PartnerID == partnerID {
			sum += e.CreditAmount
		}
	}
	return sum, nil
}

// ---- Mock WithdrawalRepository ----

type MockWithdrawalRepo struct {
	mu       sync.Mutex
	Requests map[string]*model.WithdrawalRequest

	UpdateStatusIfPendingFunc func(ctx context.Context, qx repository.Tx, id string, status model.WithdrawalStatus, adminNote string) (bool, error)
}

var _ repository.WithdrawalRepository = (*MockWithdrawalRepo)(nil)

func NewMockWithdrawalRepo() *MockWithdrawalRepo {
	return &MockWithdrawalRepo{Requests: map[string]*model.WithdrawalRequest{}}
}

func (m *MockWithdrawalRepo) Save(ctx context.Context, qx repository.Tx, w *model.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.Requests[w.ID] = &cp
	return nil
}

func (m *MockWithdrawalRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.Requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return w, nil
}

func (m *MockWithdrawalRepo) ListByStatus(ctx context.Context, qx repository.Tx, status model.WithdrawalStatus) ([]*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WithdrawalRequest
	for _, w := range m.Requests {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *MockWithdrawalRepo) UpdateStatusIfPending(ctx context.Context, qx repository.Tx, id string, status model.WithdrawalStatus, adminNote string) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, qx, id, status, adminNote)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.Requests[id]
	if !ok || w.Status != model.WithdrawalStatusPending {
		return false, nil
	}
	w.Status = status
	w.AdminNote = adminNote
	now := time.Now()
	w.ProcessedAt = &now
	return true, nil
}
