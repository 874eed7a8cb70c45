//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/adapter"
	"telegram-market-billing/internal/domain/ports/repository"
)

type reconcileFixture struct {
	uc            *reconcileUC
	payments      *MockPaymentRepo
	products      *MockProductRepo
	subscriptions *MockSubscriptionRepo
	recurring     *MockRecurringRepo
	tokens        *MockTokenRepo
	users         *MockUserRepo
	partners      *MockPartnerRepo
	txm           *MockTxManager
	gateway       *MockGateway
	notifier      *MockNotifier
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	f := &reconcileFixture{
		payments:      NewMockPaymentRepo(),
		products:      NewMockProductRepo(),
		subscriptions: &MockSubscriptionRepo{},
		recurring:     NewMockRecurringRepo(),
		tokens:        NewMockTokenRepo(),
		users:         NewMockUserRepo(),
		partners:      NewMockPartnerRepo(model.DefaultReferralPercent),
		txm:           &MockTxManager{},
		gateway:       &MockGateway{},
		notifier:      &MockNotifier{},
	}

	oneTime, err := model.NewProduct("prod-course", "Trading Course", "", model.PaymentTypeOneTime,
		[]model.Tariff{{Months: 1, Price: 300}, {Months: 3, Price: 800}})
	if err != nil {
		t.Fatalf("NewProduct: %v", err)
	}
	subProduct, err := model.NewProduct("prod-signals", "Premium Signals", "", model.PaymentTypeSubscription,
		[]model.Tariff{{Months: 1, Price: 500}})
	if err != nil {
		t.Fatalf("NewProduct: %v", err)
	}
	f.products.Products[oneTime.ID] = oneTime
	f.products.Products[subProduct.ID] = subProduct

	f.users.Users[100] = &model.User{TgID: 100, Username: "buyer"}

	partnerUC := NewPartnerUseCase(f.users, f.partners, NewMockWithdrawalRepo(), &MockTxManager{}, newLogger())
	f.uc = NewReconcileUseCase(f.payments, f.products, f.subscriptions, f.recurring,
		f.tokens, f.users, f.txm, f.gateway, partnerUC, f.notifier, fastBilling(), testAdminChat, newLogger())
	f.uc.resolver.sleep = noSleep
	return f
}

func (f *reconcileFixture) seedPayment(t *testing.T, productID string, pt model.PaymentType, walletID string) *model.Payment {
	t.Helper()
	p, err := model.NewPayment("order_1", "inv-1", 100, productID, 1, 500, pt)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	p.WalletID = walletID
	if err := f.payments.Save(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func TestReconcile_OneTimeSuccessGrantsAccess(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusSuccess {
		t.Errorf("payment status = %s, want success", got)
	}
	if len(f.subscriptions.Subs) != 1 {
		t.Fatalf("expected 1 fixed-term subscription, got %d", len(f.subscriptions.Subs))
	}
	sub := f.subscriptions.Subs[0]
	if sub.UserID != 100 || sub.ProductName != "Trading Course" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
	wantEnd := time.Now().AddDate(0, 0, 30)
	if d := sub.EndDate.Sub(wantEnd); d > time.Minute || d < -time.Minute {
		t.Errorf("end date = %v, want ~%v", sub.EndDate, wantEnd)
	}
	if len(f.recurring.Subs) != 0 {
		t.Error("a one-time purchase must not create a recurring subscription")
	}
	if got := f.notifier.SentTo(100); len(got) != 1 {
		t.Errorf("expected 1 user notice, got %d", len(got))
	}
}

func TestReconcile_SubscriptionSuccessCreatesRecurring(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-signals", model.PaymentTypeSubscription, "wallet_100")
	f.gateway.InvoiceStatusFunc = func(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
		return adapter.StatusResult{
			InvoiceID:     invoiceID,
			Status:        adapter.InvoiceStatusSuccess,
			CardToken:     "tok_abc",
			MaskedPan:     "444455******1234",
			PaymentSystem: "visa",
		}, nil
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	token, err := f.tokens.FindByUserID(context.Background(), repository.NoTX, 100)
	if err != nil {
		t.Fatalf("card token not stored: %v", err)
	}
	if token.CardToken != "tok_abc" || token.WalletID != "wallet_100" {
		t.Errorf("unexpected token: %+v", token)
	}

	if len(f.recurring.Subs) != 1 {
		t.Fatalf("expected 1 recurring subscription, got %d", len(f.recurring.Subs))
	}
	var rec *model.RecurringSubscription
	for _, s := range f.recurring.Subs {
		rec = s
	}
	if rec.WalletID != "wallet_100" || rec.Status != model.RecurringStatusActive {
		t.Errorf("unexpected recurring subscription: %+v", rec)
	}
	wantNext := time.Now().AddDate(0, 0, 30*p.Months)
	if d := rec.NextPaymentDate.Sub(wantNext); d > time.Minute || d < -time.Minute {
		t.Errorf("next payment date = %v, want ~%v", rec.NextPaymentDate, wantNext)
	}
	if f.gateway.Calls.WalletCards != 0 {
		t.Error("token in the status payload must short-circuit the wallet cards lookup")
	}
}

func TestReconcile_TokenCaptureFailureSkipsRecurring(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-signals", model.PaymentTypeSubscription, "wallet_100")
	// Status carries no walletData and the wallet listing stays empty.
	f.gateway.InvoiceStatusFunc = func(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
		return adapter.StatusResult{InvoiceID: invoiceID, Status: adapter.InvoiceStatusSuccess}, nil
	}

	_ = f.uc.Run(context.Background())

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusSuccess {
		t.Errorf("payment stays success even without a token, got %s", got)
	}
	if len(f.recurring.Subs) != 0 {
		t.Error("no recurring subscription may exist without a card token")
	}
	admin := f.notifier.SentTo(testAdminChat)
	if len(admin) != 1 {
		t.Fatalf("expected 1 admin alert, got %d", len(admin))
	}
	if buyer := f.notifier.SentTo(100); len(buyer) != 1 {
		t.Fatalf("expected 1 buyer notice about the capture failure, got %d", len(buyer))
	}
	if f.gateway.Calls.WalletCards != fastBilling().TokenSearchAttempts {
		t.Errorf("wallet cards lookups = %d, want %d", f.gateway.Calls.WalletCards, fastBilling().TokenSearchAttempts)
	}
}

func TestReconcile_LostUpdateAppliesNothing(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.payments.UpdateStatusIfPendingFunc = func(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus) (bool, error) {
		return false, nil
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.subscriptions.Subs) != 0 {
		t.Error("a lost finalize must grant nothing")
	}
	if len(f.notifier.Sent) != 0 {
		t.Errorf("a lost finalize must notify no one, got %d messages", len(f.notifier.Sent))
	}
}

func TestReconcile_FailureFinalizesFailed(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.gateway.InvoiceStatusFunc = func(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
		return adapter.StatusResult{InvoiceID: invoiceID, Status: adapter.InvoiceStatusExpired}, nil
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusFailed {
		t.Errorf("payment status = %s, want failed", got)
	}
	if len(f.subscriptions.Subs) != 0 {
		t.Error("a failed payment must grant nothing")
	}
}

func TestReconcile_NonTerminalLeavesPending(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.gateway.InvoiceStatusFunc = func(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
		return adapter.StatusResult{InvoiceID: invoiceID, Status: adapter.InvoiceStatusPending}, nil
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusPending {
		t.Errorf("payment status = %s, want pending", got)
	}
	if len(f.notifier.Sent) != 0 {
		t.Errorf("non-terminal invoices produce no notices, got %d", len(f.notifier.Sent))
	}
}

func TestReconcile_ReferralCredited(t *testing.T) {
	f := newReconcileFixture(t)
	partnerID := int64(55)
	f.users.Users[partnerID] = &model.User{TgID: partnerID, Username: "partner"}
	f.users.Users[100].RefID = &partnerID
	f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCredit := model.ReferralCredit(500, model.DefaultReferralPercent) // 100.0
	if got := f.users.Balances[partnerID]; got != wantCredit {
		t.Errorf("partner balance = %v, want %v", got, wantCredit)
	}
	if len(f.partners.Earnings) != 1 {
		t.Fatalf("expected 1 earning row, got %d", len(f.partners.Earnings))
	}
	e := f.partners.Earnings[0]
	if e.PartnerID != partnerID || e.BuyerID != 100 || e.CreditAmount != wantCredit {
		t.Errorf("unexpected earning: %+v", e)
	}
	if got := f.notifier.SentTo(partnerID); len(got) != 1 {
		t.Errorf("expected 1 partner notice, got %d", len(got))
	}
}

// rollbackOnError makes the fixture's transaction manager behave like a real
// one for the payment row: if the callback fails, the status change is undone.
func (f *reconcileFixture) rollbackOnError(p *model.Payment) {
	f.txm.WithTxFunc = func(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
		before := f.payments.Payments[p.ID].Status
		if err := fn(ctx, repository.NoTX); err != nil {
			f.payments.Payments[p.ID].Status = before
			return err
		}
		return nil
	}
}

func TestReconcile_EntitlementFailureKeepsPaymentRetryable(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.rollbackOnError(p)

	saveErr := errors.New("insert failed")
	f.subscriptions.SaveFunc = func(ctx context.Context, qx repository.Tx, s *model.Subscription) error {
		return saveErr
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusPending {
		t.Fatalf("payment status = %s, want pending after a failed grant", got)
	}
	if len(f.notifier.Sent) != 0 {
		t.Errorf("a rolled-back settlement must notify no one, got %d messages", len(f.notifier.Sent))
	}

	// The next pass picks the payment up again and settles it in full.
	f.subscriptions.SaveFunc = nil
	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run (retry): %v", err)
	}
	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusSuccess {
		t.Errorf("payment status = %s, want success after retry", got)
	}
	if len(f.subscriptions.Subs) != 1 {
		t.Errorf("expected 1 subscription after retry, got %d", len(f.subscriptions.Subs))
	}
	if got := f.notifier.SentTo(100); len(got) != 1 {
		t.Errorf("expected 1 user notice after retry, got %d", len(got))
	}
}

func TestReconcile_ReferralFailureKeepsPaymentRetryable(t *testing.T) {
	f := newReconcileFixture(t)
	partnerID := int64(55)
	f.users.Users[partnerID] = &model.User{TgID: partnerID, Username: "partner"}
	f.users.Users[100].RefID = &partnerID
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.rollbackOnError(p)

	f.users.CreditPartnerBalanceFunc = func(ctx context.Context, qx repository.Tx, tgID int64, amount float64) error {
		return errors.New("balance update failed")
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.payments.Payments[p.ID].Status; got != model.PaymentStatusPending {
		t.Errorf("payment status = %s, want pending when the credit cannot commit", got)
	}
	if len(f.notifier.Sent) != 0 {
		t.Errorf("no notices may go out for an unsettled payment, got %d", len(f.notifier.Sent))
	}
}

func TestReconcile_SettlementWritesShareTransaction(t *testing.T) {
	f := newReconcileFixture(t)
	partnerID := int64(55)
	f.users.Users[partnerID] = &model.User{TgID: partnerID, Username: "partner"}
	f.users.Users[100].RefID = &partnerID
	f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")

	inTx := false
	f.txm.WithTxFunc = func(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
		inTx = true
		defer func() { inTx = false }()
		return fn(ctx, repository.NoTX)
	}

	var statusInTx, grantInTx, creditInTx bool
	f.payments.UpdateStatusIfPendingFunc = func(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus) (bool, error) {
		statusInTx = inTx
		p, ok := f.payments.Payments[id]
		if !ok || p.Status != model.PaymentStatusPending {
			return false, nil
		}
		p.Status = status
		return true, nil
	}
	f.subscriptions.SaveFunc = func(ctx context.Context, qx repository.Tx, s *model.Subscription) error {
		grantInTx = inTx
		f.subscriptions.Subs = append(f.subscriptions.Subs, s)
		return nil
	}
	f.users.CreditPartnerBalanceFunc = func(ctx context.Context, qx repository.Tx, tgID int64, amount float64) error {
		creditInTx = inTx
		f.users.Balances[tgID] += amount
		return nil
	}

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !statusInTx {
		t.Error("the pending→success transition must run inside the settlement transaction")
	}
	if !grantInTx {
		t.Error("the entitlement grant must run inside the settlement transaction")
	}
	if !creditInTx {
		t.Error("the referral credit must run inside the settlement transaction")
	}
}

func TestReconcile_OldPendingOutsideWindowIgnored(t *testing.T) {
	f := newReconcileFixture(t)
	p := f.seedPayment(t, "prod-course", model.PaymentTypeOneTime, "")
	f.payments.Payments[p.ID].CreatedAt = time.Now().Add(-fastBilling().PendingWindow - time.Hour)

	if err := f.uc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.gateway.Calls.StatusQueries != 0 {
		t.Error("payments older than the reconciliation window must not be queried")
	}
}
