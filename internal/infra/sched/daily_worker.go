package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/infra/redis"
	"telegram-market-billing/internal/usecase"
)

// DailyWorker fires once a day at a fixed wall-clock time in the configured
// timezone: expiry reminders first, then the admin stats digest.
type DailyWorker struct {
	at     string // HH:MM
	loc    *time.Location
	uc     usecase.NotificationUseCase
	locker redis.Locker
	log    *zerolog.Logger
}

func NewDailyWorker(at string, loc *time.Location, uc usecase.NotificationUseCase, locker redis.Locker, logger *zerolog.Logger) (*DailyWorker, error) {
	if _, err := time.Parse("15:04", at); err != nil {
		return nil, fmt.Errorf("invalid daily notify time %q: %w", at, err)
	}
	wlog := logger.With().Str("component", "DailyWorker").Logger()
	return &DailyWorker{at: at, loc: loc, uc: uc, locker: locker, log: &wlog}, nil
}

func (w *DailyWorker) Run(ctx context.Context) error {
	w.log.Info().Str("at", w.at).Str("tz", w.loc.String()).Msg("Starting daily worker")
	for {
		wait := w.untilNext(time.Now().In(w.loc))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Stopping daily worker")
			return ctx.Err()
		case <-timer.C:
			runPass(ctx, w.locker, w.log, "daily", time.Hour, func(ctx context.Context) error {
				if err := w.uc.NotifyExpiring(ctx); err != nil {
					w.log.Error().Err(err).Msg("expiry notices failed")
				}
				return w.uc.SendAdminStats(ctx)
			})
		}
	}
}

// untilNext returns the duration until the next HH:MM occurrence after now.
func (w *DailyWorker) untilNext(now time.Time) time.Duration {
	t, _ := time.Parse("15:04", w.at)
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, w.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
