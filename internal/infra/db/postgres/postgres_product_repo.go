package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/repository"
)

var _ repository.ProductRepository = (*productRepo)(nil)

// productRepo stores tariffs as a JSONB list on the product row.
type productRepo struct{ pool *pgxpool.Pool }

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

func (r *productRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	tariffs, err := json.Marshal(p.Tariffs)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO products (
  id, name, description, payment_type, tariffs, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (id) DO UPDATE SET
  name=$2, description=$3, payment_type=$4, tariffs=$5, updated_at=$7;`

	_, err = execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Description, p.PaymentType, tariffs, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *productRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	const q = `SELECT id, name, description, payment_type, tariffs, created_at, updated_at FROM products WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func (r *productRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	const q = `SELECT id, name, description, payment_type, tariffs, created_at, updated_at FROM products ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	var tariffs []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PaymentType, &tariffs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(tariffs) > 0 {
		if err := json.Unmarshal(tariffs, &p.Tariffs); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}
