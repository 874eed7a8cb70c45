// File: internal/usecase/partner_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/repository"
	"telegram-market-billing/internal/infra/logging"
	"telegram-market-billing/internal/infra/metrics"
)

// Compile-time check
var _ PartnerUseCase = (*partnerUC)(nil)

// PartnerUseCase covers the referral program: crediting partner balances on
// referred purchases and paying accumulated balances out.
type PartnerUseCase interface {
	// CreditReferral writes the partner's share for a settled purchase. The
	// percent read, the earning row and the balance update share one
	// transaction; a zero-rounded credit writes nothing at all. The return
	// reports the credited partner and amount (credited=false when the buyer
	// has no referrer or the credit rounded to zero).
	CreditReferral(ctx context.Context, buyerID int64, amount float64, productName string, pt model.PaymentType) (partnerID int64, credit float64, credited bool, err error)
	// CreditReferralTx is CreditReferral on a caller-owned transaction, so
	// settlement flows can commit the credit together with the payment
	// finalization it belongs to.
	CreditReferralTx(ctx context.Context, tx repository.Tx, buyerID int64, amount float64, productName string, pt model.PaymentType) (partnerID int64, credit float64, credited bool, err error)

	Balance(ctx context.Context, partnerID int64) (float64, error)
	Earnings(ctx context.Context, partnerID int64, limit int) ([]*model.PartnerEarning, error)
	TotalEarned(ctx context.Context, partnerID int64) (float64, error)
	SetReferralPercent(ctx context.Context, percent float64) error

	// RequestWithdrawal opens a payout request. The balance is only checked
	// here; the debit happens at completion time.
	RequestWithdrawal(ctx context.Context, partnerID int64, amount float64, payoutDetails string) (*model.WithdrawalRequest, error)
	// CompleteWithdrawal debits the balance and closes the request atomically.
	// A balance that no longer covers the amount fails the completion and
	// leaves the request pending.
	CompleteWithdrawal(ctx context.Context, requestID, adminNote string) error
	RejectWithdrawal(ctx context.Context, requestID, adminNote string) error
	PendingWithdrawals(ctx context.Context) ([]*model.WithdrawalRequest, error)
}

type partnerUC struct {
	users       repository.UserRepository
	partners    repository.PartnerRepository
	withdrawals repository.WithdrawalRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewPartnerUseCase(
	users repository.UserRepository,
	partners repository.PartnerRepository,
	withdrawals repository.WithdrawalRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *partnerUC {
	return &partnerUC{
		users:       users,
		partners:    partners,
		withdrawals: withdrawals,
		tm:          tm,
		log:         logger,
	}
}

func (u *partnerUC) CreditReferral(ctx context.Context, buyerID int64, amount float64, productName string, pt model.PaymentType) (int64, float64, bool, error) {
	var (
		partnerID int64
		credit    float64
		credited  bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		partnerID, credit, credited, err = u.CreditReferralTx(ctx, tx, buyerID, amount, productName, pt)
		return err
	})
	if err != nil {
		return 0, 0, false, err
	}
	return partnerID, credit, credited, nil
}

func (u *partnerUC) CreditReferralTx(ctx context.Context, tx repository.Tx, buyerID int64, amount float64, productName string, pt model.PaymentType) (int64, float64, bool, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.CreditReferral")()

	refID, err := u.users.ReferrerOf(ctx, tx, buyerID)
	if err != nil {
		// A buyer without a users row simply has nobody to credit.
		if errors.Is(err, domain.ErrNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	if refID == nil {
		return 0, 0, false, nil
	}
	partnerID := *refID

	percent, err := u.partners.ReferralPercent(ctx, tx)
	if err != nil {
		return 0, 0, false, err
	}
	credit := model.ReferralCredit(amount, percent)
	if credit <= 0 {
		return partnerID, 0, false, nil
	}

	earning, err := model.NewPartnerEarning(partnerID, buyerID, amount, credit, percent, productName, pt)
	if err != nil {
		return 0, 0, false, err
	}
	if err := u.partners.SaveEarning(ctx, tx, earning); err != nil {
		return 0, 0, false, err
	}
	if err := u.users.CreditPartnerBalance(ctx, tx, partnerID, credit); err != nil {
		return 0, 0, false, err
	}

	metrics.IncReferralCredit(credit)
	u.log.Info().
		Int64("partner_id", partnerID).
		Int64("buyer_id", buyerID).
		Float64("credit", credit).
		Msg("referral credited")
	return partnerID, credit, true, nil
}

func (u *partnerUC) Balance(ctx context.Context, partnerID int64) (float64, error) {
	return u.users.PartnerBalance(ctx, repository.NoTX, partnerID)
}

func (u *partnerUC) Earnings(ctx context.Context, partnerID int64, limit int) ([]*model.PartnerEarning, error) {
	return u.partners.EarningsByPartner(ctx, repository.NoTX, partnerID, limit)
}

func (u *partnerUC) TotalEarned(ctx context.Context, partnerID int64) (float64, error) {
	return u.partners.TotalEarned(ctx, repository.NoTX, partnerID)
}

func (u *partnerUC) SetReferralPercent(ctx context.Context, percent float64) error {
	if percent < 0 || percent > 100 {
		return domain.ErrInvalidArgument
	}
	return u.partners.SetReferralPercent(ctx, repository.NoTX, percent)
}

func (u *partnerUC) RequestWithdrawal(ctx context.Context, partnerID int64, amount float64, payoutDetails string) (*model.WithdrawalRequest, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.RequestWithdrawal")()

	balance, err := u.users.PartnerBalance(ctx, repository.NoTX, partnerID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, domain.ErrInsufficientBalance
	}

	req, err := model.NewWithdrawalRequest(partnerID, amount, payoutDetails)
	if err != nil {
		return nil, err
	}
	if err := u.withdrawals.Save(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (u *partnerUC) CompleteWithdrawal(ctx context.Context, requestID, adminNote string) error {
	defer logging.TraceDuration(u.log, "PartnerUC.CompleteWithdrawal")()

	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		req, err := u.withdrawals.FindByID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.WithdrawalStatusPending {
			return domain.ErrWithdrawalNotOpen
		}

		debited, err := u.users.DebitPartnerBalance(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}
		if !debited {
			return domain.ErrInsufficientBalance
		}

		done, err := u.withdrawals.UpdateStatusIfPending(ctx, tx, requestID, model.WithdrawalStatusCompleted, adminNote)
		if err != nil {
			return err
		}
		if !done {
			return domain.ErrWithdrawalNotOpen
		}
		return nil
	})
}

func (u *partnerUC) RejectWithdrawal(ctx context.Context, requestID, adminNote string) error {
	done, err := u.withdrawals.UpdateStatusIfPending(ctx, repository.NoTX, requestID, model.WithdrawalStatusRejected, adminNote)
	if err != nil {
		return err
	}
	if !done {
		return domain.ErrWithdrawalNotOpen
	}
	return nil
}

func (u *partnerUC) PendingWithdrawals(ctx context.Context) ([]*model.WithdrawalRequest, error) {
	return u.withdrawals.ListByStatus(ctx, repository.NoTX, model.WithdrawalStatusPending)
}
