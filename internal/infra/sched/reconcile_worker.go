package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/infra/redis"
	"telegram-market-billing/internal/usecase"
)

// ReconcileWorker polls the gateway for pending invoice outcomes. It covers
// the no-webhook design: settlement is only ever observed by asking.
type ReconcileWorker struct {
	interval time.Duration
	uc       usecase.ReconcileUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewReconcileWorker(interval time.Duration, uc usecase.ReconcileUseCase, locker redis.Locker, logger *zerolog.Logger) *ReconcileWorker {
	wlog := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{interval: interval, uc: uc, locker: locker, log: &wlog}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconcile worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			runPass(ctx, w.locker, w.log, "reconcile", w.interval, w.uc.Run)
		}
	}
}
