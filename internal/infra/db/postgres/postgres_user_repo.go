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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, tg_id, username, ref_id, partner_balance, joined_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (tg_id) DO UPDATE SET
  username=$3, updated_at=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.TgID, u.Username, u.RefID, u.PartnerBalance, u.JoinedAt, u.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) FindByTgID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	q := `SELECT id, tg_id, username, ref_id, partner_balance, joined_at, updated_at FROM users WHERE tg_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}

	u := &model.User{}
	if err := row.Scan(&u.ID, &u.TgID, &u.Username, &u.RefID, &u.PartnerBalance, &u.JoinedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	return u, nil
}

func (r *userRepo) ReferrerOf(ctx context.Context, tx repository.Tx, tgID int64) (*int64, error) {
	const q = `SELECT ref_id FROM users WHERE tg_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}

	var refID *int64
	if err := row.Scan(&refID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	return refID, nil
}

func (r *userRepo) PartnerBalance(ctx context.Context, tx repository.Tx, tgID int64) (float64, error) {
	const q = `SELECT partner_balance FROM users WHERE tg_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return 0, err
	}

	var balance float64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}

	return balance, nil
}

func (r *userRepo) CreditPartnerBalance(ctx context.Context, tx repository.Tx, tgID int64, amount float64) error {
	const q = `UPDATE users SET partner_balance = partner_balance + $2, updated_at=NOW() WHERE tg_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, tgID, amount)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DebitPartnerBalance subtracts only when the balance still covers the amount;
// the guard lives in the WHERE clause so concurrent debits cannot overdraw.
func (r *userRepo) DebitPartnerBalance(ctx context.Context, tx repository.Tx, tgID int64, amount float64) (bool, error) {
	const q = `
UPDATE users
   SET partner_balance = partner_balance - $2,
       updated_at = NOW()
 WHERE tg_id = $1
   AND partner_balance >= $2;`

	cmd, err := execSQL(ctx, r.pool, tx, q, tgID, amount)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
