package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionPaymentRepository = (*subscriptionPaymentRepo)(nil)

type subscriptionPaymentRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionPaymentRepo(pool *pgxpool.Pool) *subscriptionPaymentRepo {
	return &subscriptionPaymentRepo{pool: pool}
}

const subPaymentColumns = `id, subscription_id, user_id, amount, status, invoice_id, order_ref, error_message, paid_at, created_at`

func (r *subscriptionPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPayment) error {
	const q = `
INSERT INTO subscription_payments (
  id, subscription_id, user_id, amount, status, invoice_id, order_ref, error_message, paid_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO UPDATE SET
  status=$5, invoice_id=$6, order_ref=$7, error_message=$8, paid_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.SubscriptionID, p.UserID, p.Amount, p.Status, p.InvoiceID, p.OrderRef, p.ErrorMessage, p.PaidAt, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionPaymentRepo) ListProcessingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionPayment, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + subPaymentColumns + ` FROM subscription_payments WHERE status='processing' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.SubscriptionPayment
	for rows.Next() {
		p := new(model.SubscriptionPayment)
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.UserID, &p.Amount, &p.Status, &p.InvoiceID, &p.OrderRef, &p.ErrorMessage, &p.PaidAt, &p.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

// FinalizeProcessing applies the only update subscription_payments ever sees:
// processing → terminal, exactly once.
func (r *subscriptionPaymentRepo) FinalizeProcessing(ctx context.Context, tx repository.Tx, id string, status model.ChargeStatus, errMsg string, paidAt *time.Time) (bool, error) {
	const q = `
UPDATE subscription_payments
   SET status = $2,
       error_message = $3,
       paid_at = COALESCE($4, paid_at)
 WHERE id = $1
   AND status = 'processing';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), errMsg, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *subscriptionPaymentRepo) CountByStatusSince(ctx context.Context, tx repository.Tx, status model.ChargeStatus, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM subscription_payments WHERE status=$1 AND created_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, string(status), since)
	if err != nil {
		return 0, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *subscriptionPaymentRepo) SumSuccessSince(ctx context.Context, tx repository.Tx, since time.Time) (float64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM subscription_payments WHERE status='success' AND created_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return 0, err
	}

	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
