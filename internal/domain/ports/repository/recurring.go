package repository

import (
	"context"
	"time"

	"telegram-market-billing/internal/domain/model"
)

type RecurringSubscriptionRepository interface {
	Save(ctx context.Context, qx Tx, s *model.RecurringSubscription) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.RecurringSubscription, error)
	ListByUser(ctx context.Context, qx Tx, userID int64) ([]*model.RecurringSubscription, error)
	// ListDue returns active subscriptions whose next_payment_date is at or
	// before now, compared at minute granularity.
	ListDue(ctx context.Context, qx Tx, now time.Time) ([]*model.RecurringSubscription, error)
	// AdvanceNextPayment moves next_payment_date one full period (months×30
	// days) forward from now.
	AdvanceNextPayment(ctx context.Context, qx Tx, id string, months int) error
	// IncrementFailures bumps payment_failures and returns the new count.
	IncrementFailures(ctx context.Context, qx Tx, id string) (int, error)
	Deactivate(ctx context.Context, qx Tx, id string) error
	CountActive(ctx context.Context, qx Tx) (int, error)
}

type SubscriptionPaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.SubscriptionPayment) error
	// ListProcessingOlderThan returns processing rows created before cutoff,
	// oldest first.
	ListProcessingOlderThan(ctx context.Context, qx Tx, cutoff time.Time, limit int) ([]*model.SubscriptionPayment, error)
	// FinalizeProcessing applies the narrow processing→terminal transition and
	// reports whether this call performed it.
	FinalizeProcessing(ctx context.Context, qx Tx, id string, status model.ChargeStatus, errMsg string, paidAt *time.Time) (bool, error)
	CountByStatusSince(ctx context.Context, qx Tx, status model.ChargeStatus, since time.Time) (int, error)
	SumSuccessSince(ctx context.Context, qx Tx, since time.Time) (float64, error)
}
