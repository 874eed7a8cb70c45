// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain"
	"telegram-market-billing/internal/domain/model"
	"telegram-market-billing/internal/domain/ports/adapter"
	"telegram-market-billing/internal/domain/ports/repository"
	"telegram-market-billing/internal/infra/logging"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

// PurchaseUseCase opens gateway invoices for user purchases. The payment row
// is written pending; the reconciler finalizes it once the gateway settles.
type PurchaseUseCase interface {
	// Initiate opens an invoice for the given product/tariff and returns the
	// pending payment plus the pay-page URL. Products with the subscription
	// payment type get a tokenized invoice so the card can be saved.
	Initiate(ctx context.Context, userID int64, productID string, months int) (*model.Payment, string, error)
	// Cancel voids an unsettled invoice and marks the payment failed.
	Cancel(ctx context.Context, invoiceID string) error
}

type purchaseUC struct {
	payments repository.PaymentRepository
	products repository.ProductRepository
	gateway  adapter.PaymentGateway
	log      *zerolog.Logger
}

func NewPurchaseUseCase(payments repository.PaymentRepository, products repository.ProductRepository, gateway adapter.PaymentGateway, logger *zerolog.Logger) *purchaseUC {
	return &purchaseUC{payments: payments, products: products, gateway: gateway, log: logger}
}

func (u *purchaseUC) Initiate(ctx context.Context, userID int64, productID string, months int) (*model.Payment, string, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.Initiate")()

	product, err := u.products.FindByID(ctx, repository.NoTX, productID)
	if err != nil {
		return nil, "", err
	}
	tariff, ok := product.TariffFor(months)
	if !ok {
		return nil, "", domain.ErrInvalidArgument
	}

	req := adapter.InvoiceRequest{
		UserID:      userID,
		ProductName: product.Name,
		Months:      tariff.Months,
		Price:       tariff.Price,
	}

	var (
		created  adapter.CreatedInvoice
		walletID string
	)
	if product.PaymentType == model.PaymentTypeSubscription {
		inv, err := u.gateway.CreateTokenizedInvoice(ctx, req)
		if err != nil {
			return nil, "", err
		}
		created = inv.CreatedInvoice
		walletID = inv.WalletID
	} else {
		created, err = u.gateway.CreateInvoice(ctx, req)
		if err != nil {
			return nil, "", err
		}
	}

	p, err := model.NewPayment(created.OrderRef, created.InvoiceID, userID, product.ID, tariff.Months, tariff.Price, product.PaymentType)
	if err != nil {
		return nil, "", err
	}
	p.WalletID = walletID

	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, "", err
	}

	u.log.Info().
		Str("invoice_id", created.InvoiceID).
		Int64("user_id", userID).
		Str("product", product.Name).
		Str("type", string(product.PaymentType)).
		Msg("invoice created")
	return p, created.PayURL, nil
}

func (u *purchaseUC) Cancel(ctx context.Context, invoiceID string) error {
	defer logging.TraceDuration(u.log, "PurchaseUC.Cancel")()

	p, err := u.payments.FindByInvoiceID(ctx, repository.NoTX, invoiceID)
	if err != nil {
		return err
	}
	if p.Status != model.PaymentStatusPending {
		return domain.ErrOperationFailed
	}
	if err := u.gateway.CancelInvoice(ctx, invoiceID); err != nil {
		return err
	}
	_, err = u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed)
	return err
}
