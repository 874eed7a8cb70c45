package repository

import (
	"context"

	"telegram-market-billing/internal/domain/model"
)

type PartnerRepository interface {
	// ReferralPercent reads the current referral percent setting. Reading it
	// inside the crediting transaction is what makes percent capture atomic
	// with the credit write.
	ReferralPercent(ctx context.Context, qx Tx) (float64, error)
	SetReferralPercent(ctx context.Context, qx Tx, percent float64) error
	SaveEarning(ctx context.Context, qx Tx, e *model.PartnerEarning) error
	EarningsByPartner(ctx context.Context, qx Tx, partnerID int64, limit int) ([]*model.PartnerEarning, error)
	TotalEarned(ctx context.Context, qx Tx, partnerID int64) (float64, error)
}

type WithdrawalRepository interface {
	Save(ctx context.Context, qx Tx, w *model.WithdrawalRequest) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, qx Tx, status model.WithdrawalStatus) ([]*model.WithdrawalRequest, error)
	// UpdateStatusIfPending transitions pending→status atomically and reports
	// whether this call performed the transition.
	UpdateStatusIfPending(ctx context.Context, qx Tx, id string, status model.WithdrawalStatus, adminNote string) (bool, error)
}
