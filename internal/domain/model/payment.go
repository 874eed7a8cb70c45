package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // invoice created; awaiting gateway settlement
	PaymentStatusSuccess PaymentStatus = "success" // settled and finalized in the ledger
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is one purchase attempt: a gateway invoice plus the local ledger
// row the reconciler finalizes. Rows are never deleted.
type Payment struct {
	ID          string
	OrderRef    string // local order reference sent to the gateway
	InvoiceID   string // gateway invoice id, unique, immutable once issued
	UserID      int64
	ProductID   string
	Months      int
	Amount      float64
	Status      PaymentStatus
	PaymentType PaymentType
	WalletID    string // set for tokenized (subscription) invoices
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPayment(orderRef, invoiceID string, userID int64, productID string, months int, amount float64, pt PaymentType) (*Payment, error) {
	if orderRef == "" || invoiceID == "" || userID <= 0 || productID == "" || months <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payment{
		ID:          uuid.NewString(),
		OrderRef:    orderRef,
		InvoiceID:   invoiceID,
		UserID:      userID,
		ProductID:   productID,
		Months:      months,
		Amount:      amount,
		Status:      PaymentStatusPending,
		PaymentType: pt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
