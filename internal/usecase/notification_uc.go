// File: internal/usecase/notification_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/adapter"
	"telegram-market-billing/internal/domain/ports/repository"
	"telegram-market-billing/internal/infra/logging"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// expiryNoticeDays is how far ahead expiry reminders reach.
const expiryNoticeDays = 5

// NotificationUseCase covers the daily housekeeping messages: expiry
// reminders for fixed-term access and the admin stats digest.
type NotificationUseCase interface {
	NotifyExpiring(ctx context.Context) error
	SendAdminStats(ctx context.Context) error
}

type notificationUC struct {
	subscriptions repository.SubscriptionRepository
	recurring     repository.RecurringSubscriptionRepository
	charges       repository.SubscriptionPaymentRepository
	notifier      adapter.NotificationSink
	loc           *time.Location
	adminChatID   int64
	log           *zerolog.Logger

	now func() time.Time
}

func NewNotificationUseCase(
	subscriptions repository.SubscriptionRepository,
	recurring repository.RecurringSubscriptionRepository,
	charges repository.SubscriptionPaymentRepository,
	notifier adapter.NotificationSink,
	loc *time.Location,
	adminChatID int64,
	logger *zerolog.Logger,
) *notificationUC {
	return &notificationUC{
		subscriptions: subscriptions,
		recurring:     recurring,
		charges:       charges,
		notifier:      notifier,
		loc:           loc,
		adminChatID:   adminChatID,
		log:           logger,
		now:           time.Now,
	}
}

func (u *notificationUC) NotifyExpiring(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "NotificationUC.NotifyExpiring")()

	subs, err := u.subscriptions.FindExpiringWithin(ctx, repository.NoTX, expiryNoticeDays)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	today := u.now()
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		daysLeft := sub.DaysLeft(today)
		var text string
		switch {
		case daysLeft == 0:
			text = msgExpired(sub.ProductName)
		case daysLeft > 0 && daysLeft <= expiryNoticeDays:
			text = msgExpiringSoon(sub.ProductName, daysLeft)
		default:
			continue
		}
		if err := u.notifier.Send(ctx, sub.UserID, text); err != nil {
			u.log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("expiry notice failed")
		}
	}
	return nil
}

func (u *notificationUC) SendAdminStats(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "NotificationUC.SendAdminStats")()

	active, err := u.recurring.CountActive(ctx, repository.NoTX)
	if err != nil {
		return err
	}

	// "Today" is the operator's calendar day, not the UTC one.
	now := u.now().In(u.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, u.loc)
	succeeded, err := u.charges.CountByStatusSince(ctx, repository.NoTX, model.ChargeStatusSuccess, startOfDay)
	if err != nil {
		return err
	}
	failed, err := u.charges.CountByStatusSince(ctx, repository.NoTX, model.ChargeStatusFailed, startOfDay)
	if err != nil {
		return err
	}
	revenue, err := u.charges.SumSuccessSince(ctx, repository.NoTX, startOfDay)
	if err != nil {
		return err
	}

	return u.notifier.Send(ctx, u.adminChatID, msgAdminDailyStats(active, succeeded, failed, revenue))
}
