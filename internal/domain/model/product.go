package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

type PaymentType string

const (
	PaymentTypeOneTime      PaymentType = "one_time"
	PaymentTypeSubscription PaymentType = "subscription"
)

// Tariff is one purchasable period of a product.
type Tariff struct {
	Months int     `json:"months"`
	Price  float64 `json:"price"`
}

// Product is a catalog entry. Tariffs are stored as a structured list;
// PaymentType fixes which billing path applies to every purchase of it.
type Product struct {
	ID          string
	Name        string
	Description string
	PaymentType PaymentType
	Tariffs     []Tariff
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewProduct(id, name, description string, pt PaymentType, tariffs []Tariff) (*Product, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" || len(tariffs) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if pt != PaymentTypeOneTime && pt != PaymentTypeSubscription {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Product{
		ID:          id,
		Name:        name,
		Description: description,
		PaymentType: pt,
		Tariffs:     tariffs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TariffFor returns the tariff matching the requested period, if any.
func (p *Product) TariffFor(months int) (Tariff, bool) {
	for _, t := range p.Tariffs {
		if t.Months == months {
			return t, true
		}
	}
	return Tariff{}, false
}
