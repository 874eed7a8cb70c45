// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-market-billing/internal/config"
	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/adapter"
	"telegram-market-billing/internal/domain/ports/repository"
	"telegram-market-billing/internal/infra/logging"
	"telegram-market-billing/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase finalizes pending payments by polling the gateway. It is
// the only component that transitions a payment out of pending. The
// pending→success transition, the entitlement grant and the referral credit
// commit in one transaction, so a failed settlement write leaves the payment
// pending and the next pass retries it.
type ReconcileUseCase interface {
	// Run walks pending payments inside the reconciliation window once.
	Run(ctx context.Context) error
}

type reconcileUC struct {
	payments      repository.PaymentRepository
	products      repository.ProductRepository
	subscriptions repository.SubscriptionRepository
	recurring     repository.RecurringSubscriptionRepository
	tokens        repository.CardTokenRepository
	users         repository.UserRepository
	tm            repository.TransactionManager
	gateway       adapter.PaymentGateway
	partners      PartnerUseCase
	notifier      adapter.NotificationSink
	resolver      *tokenResolver
	cfg           config.BillingConfig
	adminChatID   int64
	log           *zerolog.Logger

	now func() time.Time
}

func NewReconcileUseCase(
	payments repository.PaymentRepository,
	products repository.ProductRepository,
	subscriptions repository.SubscriptionRepository,
	recurring repository.RecurringSubscriptionRepository,
	tokens repository.CardTokenRepository,
	users repository.UserRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	partners PartnerUseCase,
	notifier adapter.NotificationSink,
	cfg config.BillingConfig,
	adminChatID int64,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		payments:      payments,
		products:      products,
		subscriptions: subscriptions,
		recurring:     recurring,
		tokens:        tokens,
		users:         users,
		tm:            tm,
		gateway:       gateway,
		partners:      partners,
		notifier:      notifier,
		resolver:      newTokenResolver(gateway, cfg.TokenSearchAttempts, cfg.TokenSearchDelay, logger),
		cfg:           cfg,
		adminChatID:   adminChatID,
		log:           logger,
		now:           time.Now,
	}
}

func (u *reconcileUC) Run(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "ReconcileUC.Run")()

	cutoff := u.now().Add(-u.cfg.PendingWindow)
	pending, err := u.payments.ListPendingSince(ctx, repository.NoTX, cutoff, 0)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.reconcileOne(ctx, p); err != nil {
			// One bad payment never blocks the rest of the batch.
			u.log.Error().Err(err).Str("invoice_id", p.InvoiceID).Msg("reconcile failed")
		}
	}
	return nil
}

func (u *reconcileUC) reconcileOne(ctx context.Context, p *model.Payment) error {
	status, err := u.gateway.InvoiceStatus(ctx, p.InvoiceID)
	if err != nil {
		return err
	}
	if !status.Status.Terminal() {
		return nil
	}

	if status.Status != adapter.InvoiceStatusSuccess {
		won, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if won {
			metrics.IncPaymentFinalized("failed")
			u.log.Info().Str("invoice_id", p.InvoiceID).Str("status", string(status.Status)).Msg("payment finalized failed")
		}
		return nil
	}

	// Success path. Token recovery talks to the gateway with bounded retries,
	// so it runs before the transaction opens. The pending→success transition
	// is still the idempotency gate, but it now commits together with the
	// entitlement writes and the referral credit: if any of them fails, the
	// payment stays pending and the next pass retries the whole settlement.
	productName := u.productName(ctx, p)

	var (
		card    resolvedCard
		cardErr error
	)
	if p.PaymentType == model.PaymentTypeSubscription {
		card, cardErr = u.resolver.Resolve(ctx, status, p.WalletID)
	}

	var (
		won       bool
		partnerID int64
		credit    float64
		credited  bool
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		won, err = u.payments.UpdateStatusIfPending(ctx, tx, p.ID, model.PaymentStatusSuccess)
		if err != nil || !won {
			return err
		}
		switch {
		case p.PaymentType == model.PaymentTypeSubscription && cardErr == nil:
			if err := u.grantRecurring(ctx, tx, p, productName, card); err != nil {
				return err
			}
		case p.PaymentType != model.PaymentTypeSubscription:
			if err := u.grantOneTime(ctx, tx, p, productName); err != nil {
				return err
			}
		}
		partnerID, credit, credited, err = u.partners.CreditReferralTx(ctx, tx, p.UserID, p.Amount, productName, p.PaymentType)
		return err
	})
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	metrics.IncPaymentFinalized("success")
	metrics.AddPaymentRevenue(p.Amount)

	switch {
	case p.PaymentType == model.PaymentTypeSubscription && cardErr != nil:
		// The payment settles, but automation never starts on a missing
		// token; the admin has to sort it out by hand.
		u.send(ctx, p.UserID, msgTokenCaptureFailed(productName))
		u.send(ctx, u.adminChatID, msgAdminTokenCaptureFailed(p.UserID, p.InvoiceID))
		u.log.Error().Err(cardErr).Str("invoice_id", p.InvoiceID).Msg("card token not recovered; recurring not created")
	case p.PaymentType == model.PaymentTypeSubscription:
		u.send(ctx, p.UserID, msgSubscriptionStarted(productName, p.Months, p.Amount, cardLine(card.MaskedPan, card.Brand)))
		u.send(ctx, u.adminChatID, msgAdminPurchase("subscription", p.UserID, u.username(ctx, p.UserID), productName, p.Amount, p.Months))
	default:
		u.send(ctx, p.UserID, msgOneTimeSuccess(productName, p.Months, p.Amount))
		u.send(ctx, u.adminChatID, msgAdminPurchase("purchase", p.UserID, u.username(ctx, p.UserID), productName, p.Amount, p.Months))
		u.log.Info().Str("invoice_id", p.InvoiceID).Int64("user_id", p.UserID).Msg("one-time access granted")
	}

	if credited {
		u.send(ctx, partnerID, msgPartnerCredit(buyerLine(u.username(ctx, p.UserID), p.UserID), productName, p.Amount, credit))
	}
	return nil
}

func (u *reconcileUC) grantOneTime(ctx context.Context, tx repository.Tx, p *model.Payment, productName string) error {
	sub, err := model.NewSubscription(p.UserID, p.ProductID, productName, p.Amount, p.Months)
	if err != nil {
		return err
	}
	return u.subscriptions.Save(ctx, tx, sub)
}

func (u *reconcileUC) grantRecurring(ctx context.Context, tx repository.Tx, p *model.Payment, productName string, card resolvedCard) error {
	token, err := model.NewCardToken(p.UserID, p.WalletID, card.Token, card.MaskedPan, card.Brand)
	if err != nil {
		return err
	}
	if err := u.tokens.Upsert(ctx, tx, token); err != nil {
		return err
	}

	rec, err := model.NewRecurringSubscription(p.UserID, p.ProductID, productName, p.Months, p.Amount, p.WalletID)
	if err != nil {
		return err
	}
	if err := u.recurring.Save(ctx, tx, rec); err != nil {
		return err
	}

	u.log.Info().
		Str("invoice_id", p.InvoiceID).
		Int64("user_id", p.UserID).
		Str("card", logging.Redact(card.Token, false)).
		Msg("recurring subscription created")
	return nil
}

// productName resolves the catalog name; the raw id is a last resort so a
// deleted product never blocks finalization.
func (u *reconcileUC) productName(ctx context.Context, p *model.Payment) string {
	product, err := u.products.FindByID(ctx, repository.NoTX, p.ProductID)
	if err != nil {
		return p.ProductID
	}
	return product.Name
}

func (u *reconcileUC) username(ctx context.Context, userID int64) string {
	usr, err := u.users.FindByTgID(ctx, repository.NoTX, userID)
	if err != nil {
		return ""
	}
	return usr.Username
}

func (u *reconcileUC) send(ctx context.Context, recipientID int64, text string) {
	if recipientID == 0 {
		return
	}
	if err := u.notifier.Send(ctx, recipientID, text); err != nil {
		u.log.Warn().Err(err).Int64("recipient", recipientID).Msg("notification failed")
	}
}
