package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/infra/metrics"
	"telegram-market-billing/internal/infra/redis"
)

// runPass executes one scheduler pass under a distributed lock so only a
// single instance works a given pass at a time. A busy lock skips the tick;
// the pass runs again on its next interval.
func runPass(ctx context.Context, locker redis.Locker, log *zerolog.Logger, name string, ttl time.Duration, fn func(ctx context.Context) error) {
	token, err := locker.TryLock(ctx, "billing:pass:"+name, ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			metrics.IncBillingPassSkipped(name)
			log.Debug().Str("pass", name).Msg("pass skipped: lock busy")
			return
		}
		log.Error().Err(err).Str("pass", name).Msg("lock acquire failed")
		return
	}
	defer func() {
		if err := locker.Unlock(ctx, "billing:pass:"+name, token); err != nil {
			log.Warn().Err(err).Str("pass", name).Msg("lock release failed")
		}
	}()

	start := time.Now()
	err = fn(ctx)
	metrics.ObserveBillingPass(name, time.Since(start), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("pass", name).Msg("pass errored")
		return
	}
	log.Info().Str("pass", name).Dur("took", time.Since(start)).Msg("pass finished")
}
