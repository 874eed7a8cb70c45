package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/ports/adapter"
)

// resolvedCard is what tokenResolver recovers for a settled tokenized invoice.
type resolvedCard struct {
	Token     string
	MaskedPan string
	Brand     string
}

// tokenResolver recovers the card token for a settled tokenized invoice.
// The status payload's walletData is the primary source; when it is absent the
// wallet cards listing is queried with bounded retries. A recurring
// subscription is never created without a real token.
type tokenResolver struct {
	gateway  adapter.PaymentGateway
	attempts int
	delay    time.Duration
	log      *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func newTokenResolver(gateway adapter.PaymentGateway, attempts int, delay time.Duration, log *zerolog.Logger) *tokenResolver {
	return &tokenResolver{
		gateway:  gateway,
		attempts: attempts,
		delay:    delay,
		log:      log,
		sleep:    sleepCtx,
	}
}

func (r *tokenResolver) Resolve(ctx context.Context, status adapter.StatusResult, walletID string) (resolvedCard, error) {
	if status.CardToken != "" {
		return resolvedCard{
			Token:     status.CardToken,
			MaskedPan: status.MaskedPan,
			Brand:     status.PaymentSystem,
		}, nil
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		cards, err := r.gateway.WalletCards(ctx, walletID)
		if err != nil {
			r.log.Warn().Err(err).Str("wallet_id", walletID).Int("attempt", attempt).Msg("wallet cards lookup failed")
		} else if len(cards) > 0 {
			// Newest saved card is listed last.
			card := cards[len(cards)-1]
			if card.CardToken != "" {
				masked := card.MaskedPan
				if masked == "" {
					masked = status.MaskedPan
				}
				brand := card.Brand
				if brand == "" {
					brand = status.PaymentSystem
				}
				return resolvedCard{Token: card.CardToken, MaskedPan: masked, Brand: brand}, nil
			}
		}
		if attempt < r.attempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				return resolvedCard{}, err
			}
		}
	}
	return resolvedCard{}, domain.ErrTokenCaptureFailed
}

// sleepCtx waits for d or returns early when ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
