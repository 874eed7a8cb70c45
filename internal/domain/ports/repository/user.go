package repository

import (
	"context"

	"telegram-market-billing/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, qx Tx, u *model.User) error
	FindByTgID(ctx context.Context, qx Tx, tgID int64) (*model.User, error)
	// ReferrerOf returns the Telegram id of the user's referrer, or nil.
	ReferrerOf(ctx context.Context, qx Tx, tgID int64) (*int64, error)
	PartnerBalance(ctx context.Context, qx Tx, tgID int64) (float64, error)
	CreditPartnerBalance(ctx context.Context, qx Tx, tgID int64, amount float64) error
	// DebitPartnerBalance subtracts amount only when the current balance
	// covers it; returns false (and leaves the balance untouched) otherwise.
	DebitPartnerBalance(ctx context.Context, qx Tx, tgID int64, amount float64) (bool, error)
}
