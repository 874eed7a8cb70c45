package repository

import (
	"context"

	"telegram-market-billing/internal/domain/model"
)

type CardTokenRepository interface {
	// Upsert stores the token, replacing any existing token for the user.
	Upsert(ctx context.Context, qx Tx, t *model.CardToken) error
	FindByUserID(ctx context.Context, qx Tx, userID int64) (*model.CardToken, error)
	DeleteByUserID(ctx context.Context, qx Tx, userID int64) error
}
