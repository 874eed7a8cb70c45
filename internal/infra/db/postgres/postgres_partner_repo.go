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

var _ repository.PartnerRepository = (*partnerRepo)(nil)

// partnerRepo covers the referral settings row and the earnings ledger.
type partnerRepo struct{ pool *pgxpool.Pool }

func NewPartnerRepo(pool *pgxpool.Pool) *partnerRepo {
	return &partnerRepo{pool: pool}
}

func (r *partnerRepo) ReferralPercent(ctx context.Context, tx repository.Tx) (float64, error) {
	const q = `SELECT referral_percent FROM partner_settings WHERE id=1;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}

	var percent float64
	if err := row.Scan(&percent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultReferralPercent, nil
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return percent, nil
}

func (r *partnerRepo) SetReferralPercent(ctx context.Context, tx repository.Tx, percent float64) error {
	const q = `
INSERT INTO partner_settings (id, referral_percent, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET referral_percent=$1, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, percent)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *partnerRepo) SaveEarning(ctx context.Context, tx repository.Tx, e *model.PartnerEarning) error {
	const q = `
INSERT INTO partner_earnings (
  id, partner_id, buyer_id, purchase_amount, credit_amount, percent, product_name, payment_type, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
);`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.PartnerID, e.BuyerID, e.PurchaseAmount, e.CreditAmount, e.Percent, e.ProductName, e.PaymentType, e.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *partnerRepo) EarningsByPartner(ctx context.Context, tx repository.Tx, partnerID int64, limit int) ([]*model.PartnerEarning, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, partner_id, buyer_id, purchase_amount, credit_amount, percent, product_name, payment_type, created_at FROM partner_earnings WHERE partner_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, partnerID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PartnerEarning
	for rows.Next() {
		e := new(model.PartnerEarning)
		if err := rows.Scan(&e.ID, &e.PartnerID, &e.BuyerID, &e.PurchaseAmount, &e.CreditAmount, &e.Percent, &e.ProductName, &e.PaymentType, &e.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *partnerRepo) TotalEarned(ctx context.Context, tx repository.Tx, partnerID int64) (float64, error) {
	const q = `SELECT COALESCE(SUM(credit_amount),0) FROM partner_earnings WHERE partner_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, partnerID)
	if err != nil {
		return 0, err
	}

	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

var _ repository.WithdrawalRepository = (*withdrawalRepo)(nil)

type withdrawalRepo struct{ pool *pgxpool.Pool }

func NewWithdrawalRepo(pool *pgxpool.Pool) *withdrawalRepo {
	return &withdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, user_id, amount, status, payout_details, admin_note, created_at, processed_at`

func (r *withdrawalRepo) Save(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest) error {
	const q = `
INSERT INTO withdrawal_requests (
  id, user_id, amount, status, payout_details, admin_note, created_at, processed_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (id) DO UPDATE SET
  status=$4, admin_note=$6, processed_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Amount, w.Status, w.PayoutDetails, w.AdminNote, w.CreatedAt, w.ProcessedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *withdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WithdrawalRequest, error) {
	q := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	w := &model.WithdrawalRequest{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &w.PayoutDetails, &w.AdminNote, &w.CreatedAt, &w.ProcessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	return w, nil
}

func (r *withdrawalRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.WithdrawalStatus) ([]*model.WithdrawalRequest, error) {
	const q = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE status=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(status))
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WithdrawalRequest
	for rows.Next() {
		w := new(model.WithdrawalRequest)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &w.PayoutDetails, &w.AdminNote, &w.CreatedAt, &w.ProcessedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *withdrawalRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.WithdrawalStatus, adminNote string) (bool, error) {
	const q = `
UPDATE withdrawal_requests
   SET status = $2,
       admin_note = $3,
       processed_at = NOW()
 WHERE id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), adminNote)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
