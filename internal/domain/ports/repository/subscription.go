package repository

import (
	"context"

	"telegram-market-billing/internal/domain/model"
)

type SubscriptionRepository interface {
	Save(ctx context.Context, qx Tx, s *model.Subscription) error
	ListByUser(ctx context.Context, qx Tx, userID int64) ([]*model.Subscription, error)
	// FindExpiringWithin returns active subscriptions ending within the next
	// withinDays days (inclusive of today).
	FindExpiringWithin(ctx context.Context, qx Tx, withinDays int) ([]*model.Subscription, error)
}
