package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a fixed-duration entitlement created from a one-time
// purchase. It never renews on its own.
type Subscription struct {
	ID          string
	UserID      int64
	ProductID   string
	ProductName string
	Price       float64
	StartDate   time.Time
	EndDate     time.Time
	Status      SubscriptionStatus
	CreatedAt   time.Time
}

// NewSubscription grants months×30 days from the purchase date.
func NewSubscription(userID int64, productID, productName string, price float64, months int) (*Subscription, error) {
	if userID <= 0 || productID == "" || months <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductID:   productID,
		ProductName: productName,
		Price:       price,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, 30*months),
		Status:      SubscriptionStatusActive,
		CreatedAt:   now,
	}, nil
}

// DaysLeft reports whole days until the end date, relative to today.
func (s *Subscription) DaysLeft(today time.Time) int {
	return int(s.EndDate.Sub(today.Truncate(24*time.Hour)).Hours() / 24)
}
