package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/repository"
)

var _ repository.CardTokenRepository = (*cardTokenRepo)(nil)

type cardTokenRepo struct{ pool *pgxpool.Pool }

func NewCardTokenRepo(pool *pgxpool.Pool) *cardTokenRepo {
	return &cardTokenRepo{pool: pool}
}

// Upsert keys on user_id: re-tokenization replaces the stored card, so a user
// never accumulates stale tokens.
func (r *cardTokenRepo) Upsert(ctx context.Context, tx repository.Tx, t *model.CardToken) error {
	const q = `
INSERT INTO card_tokens (
  id, user_id, wallet_id, card_token, masked_pan, card_brand, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (user_id) DO UPDATE SET
  wallet_id=$3, card_token=$4, masked_pan=$5, card_brand=$6, updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.WalletID, t.CardToken, t.MaskedPan, t.CardBrand, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *cardTokenRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.CardToken, error) {
	const q = `SELECT id, user_id, wallet_id, card_token, masked_pan, card_brand, created_at, updated_at FROM card_tokens WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}

	t := &model.CardToken{}
	if err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &t.CardToken, &t.MaskedPan, &t.CardBrand, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	return t, nil
}

func (r *cardTokenRepo) DeleteByUserID(ctx context.Context, tx repository.Tx, userID int64) error {
	const q = `DELETE FROM card_tokens WHERE user_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
