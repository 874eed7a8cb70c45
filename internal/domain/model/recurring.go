package model

import (
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

type RecurringStatus string

const (
	RecurringStatusActive   RecurringStatus = "active"
	RecurringStatusInactive RecurringStatus = "inactive" // terminal; no reactivation path
)

// PaymentFailureLimit is the count at which a subscription is deactivated.
const PaymentFailureLimit = 3

// RecurringSubscription is an ongoing commitment to charge the user's stored
// card token every Months×30 days. PaymentFailures only ever grows; the only
// escape is deactivation.
type RecurringSubscription struct {
	ID              string
	UserID          int64
	ProductID       string
	ProductName     string
	Months          int
	Price           float64
	WalletID        string
	NextPaymentDate time.Time
	Status          RecurringStatus
	PaymentFailures int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecurringSubscription schedules the first automatic charge one full
// period after the (already settled) first payment.
func NewRecurringSubscription(userID int64, productID, productName string, months int, price float64, walletID string) (*RecurringSubscription, error) {
	if userID <= 0 || productID == "" || months <= 0 || price <= 0 || walletID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &RecurringSubscription{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProductID:       productID,
		ProductName:     productName,
		Months:          months,
		Price:           price,
		WalletID:        walletID,
		NextPaymentDate: now.AddDate(0, 0, 30*months),
		Status:          RecurringStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

type ChargeStatus string

const (
	ChargeStatusProcessing ChargeStatus = "processing" // gateway has not reached a terminal state yet
	ChargeStatusSuccess    ChargeStatus = "success"
	ChargeStatusFailed     ChargeStatus = "failed"
	ChargeStatusError      ChargeStatus = "error" // charge never reached the gateway, or status unknowable
)

// SubscriptionPayment is one charge attempt against a RecurringSubscription.
// Append-only; the sweeper's processing→terminal transition is the only
// update ever applied.
type SubscriptionPayment struct {
	ID             string
	SubscriptionID string
	UserID         int64
	Amount         float64
	Status         ChargeStatus
	InvoiceID      string
	OrderRef       string
	ErrorMessage   string
	PaidAt         *time.Time
	CreatedAt      time.Time
}

func NewSubscriptionPayment(subscriptionID string, userID int64, amount float64, status ChargeStatus) *SubscriptionPayment {
	return &SubscriptionPayment{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		Amount:         amount,
		Status:         status,
		CreatedAt:      time.Now(),
	}
}
