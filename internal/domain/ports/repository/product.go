package repository

import (
	"context"

	"telegram-market-billing/internal/domain/model"
)

type ProductRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Product) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Product, error)
	List(ctx context.Context, qx Tx) ([]*model.Product, error)
}
