package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/infra/redis"
	"telegram-market-billing/internal/usecase"
)

// RecurringWorker runs the renewal charge pass on a fixed interval.
type RecurringWorker struct {
	interval time.Duration
	uc       usecase.RecurringUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewRecurringWorker(interval time.Duration, uc usecase.RecurringUseCase, locker redis.Locker, logger *zerolog.Logger) *RecurringWorker {
	wlog := logger.With().Str("component", "RecurringWorker").Logger()
	return &RecurringWorker{interval: interval, uc: uc, locker: locker, log: &wlog}
}

func (w *RecurringWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting recurring worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping recurring worker")
			return ctx.Err()
		case <-ticker.C:
			// The lock TTL outlives the slowest realistic pass; charges poll
			// the gateway, so a pass can take minutes.
			runPass(ctx, w.locker, w.log, "recurring", w.interval, w.uc.ProcessDue)
		}
	}
}

// SweepWorker resolves charges left in processing by earlier passes.
type SweepWorker struct {
	interval time.Duration
	uc       usecase.RecurringUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, uc usecase.RecurringUseCase, locker redis.Locker, logger *zerolog.Logger) *SweepWorker {
	wlog := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{interval: interval, uc: uc, locker: locker, log: &wlog}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			runPass(ctx, w.locker, w.log, "sweep", w.interval, w.uc.SweepProcessing)
		}
	}
}
