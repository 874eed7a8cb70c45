package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

// CardToken is the single saved card for a user. Re-tokenization overwrites
// the existing row; a user never holds two tokens.
type CardToken struct {
	ID        string
	UserID    int64
	WalletID  string
	CardToken string
	MaskedPan string
	CardBrand string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCardToken(userID int64, walletID, token, maskedPan, brand string) (*CardToken, error) {
	if userID <= 0 || walletID == "" || token == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &CardToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		WalletID:  walletID,
		CardToken: token,
		MaskedPan: maskedPan,
		CardBrand: brand,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
