package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

// User is a Telegram user known to the shop. RefID is a weak reference to the
// Telegram id of the partner who invited them; it never implies ownership.
type User struct {
	ID             string
	TgID           int64
	Username       string
	RefID          *int64
	PartnerBalance float64
	JoinedAt       time.Time
	UpdatedAt      time.Time
}

func NewUser(id string, tgID int64, username string, refID *int64) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:        id,
		TgID:      tgID,
		Username:  username,
		RefID:     refID,
		JoinedAt:  now,
		UpdatedAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
