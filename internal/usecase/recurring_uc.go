// File: internal/usecase/recurring_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
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
var _ RecurringUseCase = (*recurringUC)(nil)

// RecurringUseCase drives the automatic renewal cycle: charging stored card
// tokens for due subscriptions and resolving charges that were left in
// processing by an earlier pass.
type RecurringUseCase interface {
	// ProcessDue charges every active subscription whose next payment date has
	// arrived. One subscription's failure never blocks the rest.
	ProcessDue(ctx context.Context) error
	// SweepProcessing re-queries charges stuck in processing and applies their
	// terminal outcome exactly once.
	SweepProcessing(ctx context.Context) error
	// Cancel deactivates a subscription at the user's request.
	Cancel(ctx context.Context, subscriptionID string) error
}

type recurringUC struct {
	recurring   repository.RecurringSubscriptionRepository
	charges     repository.SubscriptionPaymentRepository
	tokens      repository.CardTokenRepository
	users       repository.UserRepository
	tm          repository.TransactionManager
	gateway     adapter.PaymentGateway
	partners    PartnerUseCase
	notifier    adapter.NotificationSink
	cfg         config.BillingConfig
	adminChatID int64
	log         *zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRecurringUseCase(
	recurring repository.RecurringSubscriptionRepository,
	charges repository.SubscriptionPaymentRepository,
	tokens repository.CardTokenRepository,
	users repository.UserRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	partners PartnerUseCase,
	notifier adapter.NotificationSink,
	cfg config.BillingConfig,
	adminChatID int64,
	logger *zerolog.Logger,
) *recurringUC {
	return &recurringUC{
		recurring:   recurring,
		charges:     charges,
		tokens:      tokens,
		users:       users,
		tm:          tm,
		gateway:     gateway,
		partners:    partners,
		notifier:    notifier,
		cfg:         cfg,
		adminChatID: adminChatID,
		log:         logger,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func (u *recurringUC) ProcessDue(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "RecurringUC.ProcessDue")()

	due, err := u.recurring.ListDue(ctx, repository.NoTX, u.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	u.log.Info().Int("due", len(due)).Msg("recurring pass started")

	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.chargeOne(ctx, sub); err != nil {
			u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("recurring charge errored")
		}
	}
	return nil
}

func (u *recurringUC) chargeOne(ctx context.Context, sub *model.RecurringSubscription) error {
	token, err := u.tokens.FindByUserID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No stored card: the charge cannot even be attempted. Counts as a
			// failure so abandoned subscriptions drain out via the limit.
			u.recordCharge(ctx, sub, model.ChargeStatusError, "", "", domain.ErrNoCardToken.Error(), nil)
			metrics.IncRecurringCharge("error")
			u.bumpFailures(ctx, sub)
			return nil
		}
		return err
	}

	req := adapter.InvoiceRequest{
		UserID:      sub.UserID,
		ProductName: sub.ProductName,
		Months:      sub.Months,
		Price:       sub.Price,
	}

	charge, err := u.gateway.ChargeToken(ctx, token.WalletID, token.CardToken, req)
	if err != nil {
		var gwErr *adapter.GatewayError
		if errors.As(err, &gwErr) {
			return u.handleRejection(ctx, sub, token, gwErr)
		}
		// Transport failure: the charge may or may not exist on the gateway
		// side. Never re-charge blindly; record the uncertainty and count it.
		u.recordCharge(ctx, sub, model.ChargeStatusError, "", "", err.Error(), nil)
		metrics.IncRecurringCharge("error")
		u.bumpFailures(ctx, sub)
		return nil
	}

	status, pollErr := u.pollStatus(ctx, charge.InvoiceID)
	if pollErr != nil {
		u.recordCharge(ctx, sub, model.ChargeStatusError, charge.InvoiceID, charge.OrderRef,
			fmt.Sprintf("status unknown after %d attempts", u.cfg.PollAttempts), nil)
		metrics.IncRecurringCharge("error")
		u.bumpFailures(ctx, sub)
		return nil
	}

	maskedPan := token.MaskedPan
	if status.MaskedPan != "" {
		maskedPan = status.MaskedPan
	}

	switch status.Status {
	case adapter.InvoiceStatusSuccess:
		// Success row, date advance and referral credit commit together, so a
		// crash can never leave a paid cycle with a stale next payment date or
		// an uncredited partner.
		paidAt := u.now()
		var (
			partnerID int64
			credit    float64
			credited  bool
		)
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			p := model.NewSubscriptionPayment(sub.ID, sub.UserID, sub.Price, model.ChargeStatusSuccess)
			p.InvoiceID = charge.InvoiceID
			p.OrderRef = charge.OrderRef
			p.PaidAt = &paidAt
			if err := u.charges.Save(ctx, tx, p); err != nil {
				return err
			}
			if err := u.recurring.AdvanceNextPayment(ctx, tx, sub.ID, sub.Months); err != nil {
				return err
			}
			var err error
			partnerID, credit, credited, err = u.partners.CreditReferralTx(ctx, tx, sub.UserID, sub.Price, sub.ProductName, model.PaymentTypeSubscription)
			return err
		})
		if err != nil {
			return err
		}
		metrics.IncRecurringCharge("success")
		if credited {
			u.send(ctx, partnerID, msgPartnerCredit(buyerLine(u.username(ctx, sub.UserID), sub.UserID), sub.ProductName, sub.Price, credit))
		}
		u.send(ctx, sub.UserID, msgAutoPaymentSuccess(sub.ProductName, sub.Price, sub.Months, paidAt.AddDate(0, 0, 30*sub.Months)))
		u.send(ctx, u.adminChatID, msgAdminAutoPayment(true, sub.UserID, u.username(ctx, sub.UserID), sub.ProductName, sub.Price,
			fmt.Sprintf("📄 <b>Invoice:</b> <code>%s</code>\n", charge.InvoiceID)))
		u.log.Info().Str("subscription_id", sub.ID).Str("invoice_id", charge.InvoiceID).Msg("renewal charged")

	case adapter.InvoiceStatusProcessing:
		// Still settling after the poll budget. The next payment date stays
		// put; the sweeper owns this charge from here.
		u.recordCharge(ctx, sub, model.ChargeStatusProcessing, charge.InvoiceID, charge.OrderRef, "", nil)
		metrics.IncRecurringCharge("processing")
		u.log.Info().Str("subscription_id", sub.ID).Str("invoice_id", charge.InvoiceID).Msg("charge left in processing")

	case adapter.InvoiceStatusFailure, adapter.InvoiceStatusExpired:
		reason := status.FailureReason
		if status.Status == adapter.InvoiceStatusExpired {
			reason = "invoice expired"
		}
		u.recordCharge(ctx, sub, model.ChargeStatusFailed, charge.InvoiceID, charge.OrderRef, reason, nil)
		metrics.IncRecurringCharge("failed")
		u.failAndNotify(ctx, sub, maskedPan, charge.InvoiceID, reason)

	default:
		u.recordCharge(ctx, sub, model.ChargeStatusError, charge.InvoiceID, charge.OrderRef,
			fmt.Sprintf("unknown status: %s", status.Status), nil)
		metrics.IncRecurringCharge("error")
		u.bumpFailures(ctx, sub)
	}
	return nil
}

// handleRejection maps a synchronous gateway rejection onto the subscription
// state machine. TOKEN_NOT_FOUND is the one rejection with no retry value:
// the stored token is dead and the subscription ends now.
func (u *recurringUC) handleRejection(ctx context.Context, sub *model.RecurringSubscription, token *model.CardToken, gwErr *adapter.GatewayError) error {
	u.recordCharge(ctx, sub, model.ChargeStatusFailed, "", "", fmt.Sprintf("%s: %s", gwErr.Code, gwErr.Text), nil)
	metrics.IncRecurringCharge("failed")

	if gwErr.Code == adapter.GatewayCodeTokenNotFound {
		if err := u.recurring.Deactivate(ctx, repository.NoTX, sub.ID); err != nil {
			return err
		}
		metrics.IncRecurringDeactivation("token_invalid")
		u.send(ctx, sub.UserID, msgTokenInvalid(sub.ProductName, token.MaskedPan))
		u.send(ctx, u.adminChatID, msgAdminAutoPayment(false, sub.UserID, u.username(ctx, sub.UserID), sub.ProductName, sub.Price,
			fmt.Sprintf("⚠️ <b>Reason:</b> dead card token (%s)\n", gwErr.Text)))
		u.log.Warn().Str("subscription_id", sub.ID).Msg("deactivated: token not found")
		return nil
	}

	u.failAndNotify(ctx, sub, token.MaskedPan, "", gwErr.Text)
	return nil
}

// applyFailure increments the failure count on the given handle and
// deactivates the subscription once the limit is reached. Returns the new
// count and whether deactivation happened.
func (u *recurringUC) applyFailure(ctx context.Context, tx repository.Tx, sub *model.RecurringSubscription) (int, bool, error) {
	failures, err := u.recurring.IncrementFailures(ctx, tx, sub.ID)
	if err != nil {
		return 0, false, err
	}
	if failures < model.PaymentFailureLimit {
		return failures, false, nil
	}
	if err := u.recurring.Deactivate(ctx, tx, sub.ID); err != nil {
		return failures, false, err
	}
	return failures, true, nil
}

// notifyFailure sends the user/admin messages matching a counted failure:
// a cancellation notice at the limit, a failed-charge notice below it.
func (u *recurringUC) notifyFailure(ctx context.Context, sub *model.RecurringSubscription, failures int, deactivated bool, maskedPan, invoiceID, reason string) {
	if deactivated {
		metrics.IncRecurringDeactivation("failure_limit")
		u.send(ctx, sub.UserID, msgSubscriptionCancelled(sub.ProductName))
		u.send(ctx, u.adminChatID, msgAdminAutoPayment(false, sub.UserID, u.username(ctx, sub.UserID), sub.ProductName, sub.Price,
			fmt.Sprintf("🚫 <b>Cancelled after %d failures</b>\n", failures)))
		u.log.Warn().Str("subscription_id", sub.ID).Int("failures", failures).Msg("deactivated: failure limit")
		return
	}

	detail := ""
	if reason != "" {
		detail = fmt.Sprintf("⚠️ <b>Reason:</b> %s\n", reason)
	}
	if invoiceID != "" {
		detail += fmt.Sprintf("📄 <b>Invoice:</b> <code>%s</code>\n", invoiceID)
	}
	u.send(ctx, sub.UserID, msgAutoPaymentFailed(sub.ProductName, maskedPan))
	u.send(ctx, u.adminChatID, msgAdminAutoPayment(false, sub.UserID, u.username(ctx, sub.UserID), sub.ProductName, sub.Price, detail))
}

// failAndNotify increments the failure count and either cancels the
// subscription at the limit or tells the user the charge failed.
func (u *recurringUC) failAndNotify(ctx context.Context, sub *model.RecurringSubscription, maskedPan, invoiceID, reason string) {
	failures, deactivated, err := u.applyFailure(ctx, repository.NoTX, sub)
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failure increment failed")
		return
	}
	u.notifyFailure(ctx, sub, failures, deactivated, maskedPan, invoiceID, reason)
}

// bumpFailures counts a failure without the user-facing "charge failed"
// message, for cases where no real charge outcome exists yet.
func (u *recurringUC) bumpFailures(ctx context.Context, sub *model.RecurringSubscription) {
	failures, deactivated, err := u.applyFailure(ctx, repository.NoTX, sub)
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failure increment failed")
		return
	}
	if deactivated {
		metrics.IncRecurringDeactivation("failure_limit")
		u.send(ctx, sub.UserID, msgSubscriptionCancelled(sub.ProductName))
		u.log.Warn().Str("subscription_id", sub.ID).Int("failures", failures).Msg("deactivated: failure limit")
	}
}

// pollStatus queries the invoice until the gateway reaches a terminal state or
// the attempt budget runs out. A processing result after the budget is a valid
// answer, not an error; nil error with processing status means exactly that.
func (u *recurringUC) pollStatus(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
	if err := u.sleep(ctx, u.cfg.PollSettleDelay); err != nil {
		return adapter.StatusResult{}, err
	}

	var last adapter.StatusResult
	gotStatus := false
	for attempt := 1; attempt <= u.cfg.PollAttempts; attempt++ {
		status, err := u.gateway.InvoiceStatus(ctx, invoiceID)
		if err != nil {
			u.log.Warn().Err(err).Str("invoice_id", invoiceID).Int("attempt", attempt).Msg("status poll failed")
			if attempt < u.cfg.PollAttempts {
				if serr := u.sleep(ctx, u.cfg.PollBackoffStep); serr != nil {
					return adapter.StatusResult{}, serr
				}
				continue
			}
			if gotStatus {
				return last, nil
			}
			return adapter.StatusResult{}, err
		}

		last, gotStatus = status, true
		if status.Status.Terminal() {
			return status, nil
		}
		if status.Status != adapter.InvoiceStatusProcessing {
			// created/pending etc. — treat like processing and keep waiting.
			u.log.Debug().Str("invoice_id", invoiceID).Str("status", string(status.Status)).Msg("non-terminal status")
		}
		if attempt < u.cfg.PollAttempts {
			backoff := time.Duration(attempt) * u.cfg.PollBackoffStep
			if backoff > u.cfg.PollBackoffCap {
				backoff = u.cfg.PollBackoffCap
			}
			if err := u.sleep(ctx, backoff); err != nil {
				return adapter.StatusResult{}, err
			}
		}
	}
	// Budget exhausted without a terminal state.
	last.Status = adapter.InvoiceStatusProcessing
	return last, nil
}

func (u *recurringUC) SweepProcessing(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "RecurringUC.SweepProcessing")()

	cutoff := u.now().Add(-u.cfg.SweepGrace)
	stuck, err := u.charges.ListProcessingOlderThan(ctx, repository.NoTX, cutoff, u.cfg.SweepLimit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, charge := range stuck {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.sweepOne(ctx, charge); err != nil {
			u.log.Error().Err(err).Str("charge_id", charge.ID).Msg("sweep failed")
		}
	}
	return nil
}

func (u *recurringUC) sweepOne(ctx context.Context, charge *model.SubscriptionPayment) error {
	sub, err := u.recurring.FindByID(ctx, repository.NoTX, charge.SubscriptionID)
	if err != nil {
		return err
	}

	status, err := u.gateway.InvoiceStatus(ctx, charge.InvoiceID)
	if err != nil {
		// Unreachable gateway: leave the row for the next sweep unless it has
		// aged out entirely.
		if u.now().Sub(charge.CreatedAt) > u.cfg.MaxProcessingAge {
			return u.forceFail(ctx, sub, charge, "status unresolved past processing age limit")
		}
		return err
	}

	switch status.Status {
	case adapter.InvoiceStatusSuccess:
		paidAt := u.now()
		var (
			won       bool
			partnerID int64
			credit    float64
			credited  bool
		)
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			var err error
			won, err = u.charges.FinalizeProcessing(ctx, tx, charge.ID, model.ChargeStatusSuccess, "", &paidAt)
			if err != nil || !won {
				return err
			}
			if err := u.recurring.AdvanceNextPayment(ctx, tx, sub.ID, sub.Months); err != nil {
				return err
			}
			partnerID, credit, credited, err = u.partners.CreditReferralTx(ctx, tx, sub.UserID, sub.Price, sub.ProductName, model.PaymentTypeSubscription)
			return err
		})
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		metrics.IncRecurringCharge("success")
		if credited {
			u.send(ctx, partnerID, msgPartnerCredit(buyerLine(u.username(ctx, sub.UserID), sub.UserID), sub.ProductName, sub.Price, credit))
		}
		maskedPan := u.maskedPan(ctx, sub.UserID)
		u.send(ctx, sub.UserID, msgAutoPaymentSuccess(sub.ProductName, sub.Price, sub.Months, paidAt.AddDate(0, 0, 30*sub.Months)))
		u.send(ctx, u.adminChatID, msgAdminAutoPayment(true, sub.UserID, u.username(ctx, sub.UserID), sub.ProductName, sub.Price,
			fmt.Sprintf("📄 <b>Invoice:</b> <code>%s</code>\n%s", charge.InvoiceID, cardLine(maskedPan, ""))))
		u.log.Info().Str("charge_id", charge.ID).Msg("stuck charge resolved: success")

	case adapter.InvoiceStatusFailure, adapter.InvoiceStatusExpired:
		reason := status.FailureReason
		if status.Status == adapter.InvoiceStatusExpired {
			reason = "invoice expired"
		}
		// Charge finalization and the failure count commit together; a crash
		// between them would otherwise fail the charge without counting it.
		var (
			won         bool
			failures    int
			deactivated bool
		)
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			var err error
			won, err = u.charges.FinalizeProcessing(ctx, tx, charge.ID, model.ChargeStatusFailed, reason, nil)
			if err != nil || !won {
				return err
			}
			failures, deactivated, err = u.applyFailure(ctx, tx, sub)
			return err
		})
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		metrics.IncRecurringCharge("failed")
		u.notifyFailure(ctx, sub, failures, deactivated, u.maskedPan(ctx, sub.UserID), charge.InvoiceID, reason)
		u.log.Info().Str("charge_id", charge.ID).Str("reason", reason).Msg("stuck charge resolved: failed")

	default:
		if u.now().Sub(charge.CreatedAt) > u.cfg.MaxProcessingAge {
			return u.forceFail(ctx, sub, charge, "still processing past age limit")
		}
		// Still processing inside the age limit; the next sweep will retry.
	}
	return nil
}

// forceFail closes out a charge the gateway never resolved. Without this,
// a permanently silent invoice would hold the subscription open forever.
func (u *recurringUC) forceFail(ctx context.Context, sub *model.RecurringSubscription, charge *model.SubscriptionPayment, reason string) error {
	won, err := u.charges.FinalizeProcessing(ctx, repository.NoTX, charge.ID, model.ChargeStatusError, reason, nil)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	metrics.IncRecurringCharge("error")
	u.bumpFailures(ctx, sub)
	u.log.Warn().Str("charge_id", charge.ID).Str("reason", reason).Msg("stuck charge force-failed")
	return nil
}

func (u *recurringUC) Cancel(ctx context.Context, subscriptionID string) error {
	sub, err := u.recurring.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.RecurringStatusActive {
		return domain.ErrOperationFailed
	}
	if err := u.recurring.Deactivate(ctx, repository.NoTX, subscriptionID); err != nil {
		return err
	}
	metrics.IncRecurringDeactivation("manual")
	return nil
}

func (u *recurringUC) recordCharge(ctx context.Context, sub *model.RecurringSubscription, status model.ChargeStatus, invoiceID, orderRef, errMsg string, paidAt *time.Time) {
	p := model.NewSubscriptionPayment(sub.ID, sub.UserID, sub.Price, status)
	p.InvoiceID = invoiceID
	p.OrderRef = orderRef
	p.ErrorMessage = errMsg
	p.PaidAt = paidAt
	if err := u.charges.Save(ctx, repository.NoTX, p); err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("charge record save failed")
	}
}

func (u *recurringUC) maskedPan(ctx context.Context, userID int64) string {
	token, err := u.tokens.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return "**** **** **** ****"
	}
	return token.MaskedPan
}

func (u *recurringUC) username(ctx context.Context, userID int64) string {
	usr, err := u.users.FindByTgID(ctx, repository.NoTX, userID)
	if err != nil {
		return ""
	}
	return usr.Username
}

func (u *recurringUC) send(ctx context.Context, recipientID int64, text string) {
	if recipientID == 0 {
		return
	}
	if err := u.notifier.Send(ctx, recipientID, text); err != nil {
		u.log.Warn().Err(err).Int64("recipient", recipientID).Msg("notification failed")
	}
}
