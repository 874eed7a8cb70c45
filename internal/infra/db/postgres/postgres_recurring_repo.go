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

var _ repository.RecurringSubscriptionRepository = (*recurringRepo)(nil)

type recurringRepo struct{ pool *pgxpool.Pool }

func NewRecurringRepo(pool *pgxpool.Pool) *recurringRepo {
	return &recurringRepo{pool: pool}
}

const recurringColumns = `id, user_id, product_id, product_name, months, price, wallet_id, next_payment_date, status, payment_failures, created_at, updated_at`

func (r *recurringRepo) Save(ctx context.Context, tx repository.Tx, s *model.RecurringSubscription) error {
	const q = `
INSERT INTO recurring_subscriptions (
  id, user_id, product_id, product_name, months, price, wallet_id, next_payment_date, status, payment_failures, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  next_payment_date=$8, status=$9, payment_failures=$10, updated_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.ProductID, s.ProductName, s.Months, s.Price, s.WalletID, s.NextPaymentDate, s.Status, s.PaymentFailures, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *recurringRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RecurringSubscription, error) {
	q := `SELECT ` + recurringColumns + ` FROM recurring_subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRecurring(row)
}

func (r *recurringRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.RecurringSubscription, error) {
	const q = `SELECT ` + recurringColumns + ` FROM recurring_subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	return collectRecurring(rows)
}

// ListDue compares next_payment_date at minute granularity so a charge
// scheduled for 14:03:59 is picked up by the 14:03 pass.
func (r *recurringRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.RecurringSubscription, error) {
	const q = `
SELECT ` + recurringColumns + `
  FROM recurring_subscriptions
 WHERE status='active'
   AND DATE_TRUNC('minute', next_payment_date) <= DATE_TRUNC('minute', $1::timestamptz)
 ORDER BY next_payment_date ASC;`

	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	return collectRecurring(rows)
}

func (r *recurringRepo) AdvanceNextPayment(ctx context.Context, tx repository.Tx, id string, months int) error {
	const q = `
UPDATE recurring_subscriptions
   SET next_payment_date = NOW() + $2 * INTERVAL '30 days',
       updated_at = NOW()
 WHERE id = $1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, months)
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

func (r *recurringRepo) IncrementFailures(ctx context.Context, tx repository.Tx, id string) (int, error) {
	const q = `
UPDATE recurring_subscriptions
   SET payment_failures = payment_failures + 1,
       updated_at = NOW()
 WHERE id = $1
RETURNING payment_failures;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *recurringRepo) Deactivate(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE recurring_subscriptions SET status='inactive', updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
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

func (r *recurringRepo) CountActive(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM recurring_subscriptions WHERE status='active';`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanRecurring(row pgx.Row) (*model.RecurringSubscription, error) {
	s := &model.RecurringSubscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.ProductID, &s.ProductName, &s.Months, &s.Price, &s.WalletID, &s.NextPaymentDate, &s.Status, &s.PaymentFailures, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func collectRecurring(rows pgx.Rows) ([]*model.RecurringSubscription, error) {
	var out []*model.RecurringSubscription
	for rows.Next() {
		s, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
