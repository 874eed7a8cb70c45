package model

import (
	"math"
	"time"

	"telegram-market-billing/internal/domain"

	"github.com/google/uuid"
)

// DefaultReferralPercent applies when no percent has been configured.
const DefaultReferralPercent = 20.0

// ReferralCredit computes the partner's share of a purchase, rounded to one
// decimal place.
func ReferralCredit(amount, percent float64) float64 {
	return math.Round(amount*(percent/100)*10) / 10
}

// PartnerEarning is an immutable audit row for one referral credit. Percent
// is captured at credit time so later changes never rewrite history.
type PartnerEarning struct {
	ID             string
	PartnerID      int64
	BuyerID        int64
	PurchaseAmount float64
	CreditAmount   float64
	Percent        float64
	ProductName    string
	PaymentType    PaymentType
	CreatedAt      time.Time
}

func NewPartnerEarning(partnerID, buyerID int64, purchaseAmount, creditAmount, percent float64, productName string, pt PaymentType) (*PartnerEarning, error) {
	if partnerID <= 0 || buyerID <= 0 || creditAmount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PartnerEarning{
		ID:             uuid.NewString(),
		PartnerID:      partnerID,
		BuyerID:        buyerID,
		PurchaseAmount: purchaseAmount,
		CreditAmount:   creditAmount,
		Percent:        percent,
		ProductName:    productName,
		PaymentType:    pt,
		CreatedAt:      time.Now(),
	}, nil
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
)

// WithdrawalRequest is a partner payout request. Completion debits the
// balance atomically and only if the balance still covers the amount.
type WithdrawalRequest struct {
	ID            string
	UserID        int64
	Amount        float64
	Status        WithdrawalStatus
	PayoutDetails string
	AdminNote     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

func NewWithdrawalRequest(userID int64, amount float64, payoutDetails string) (*WithdrawalRequest, error) {
	if userID <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &WithdrawalRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		Status:        WithdrawalStatusPending,
		PayoutDetails: payoutDetails,
		CreatedAt:     time.Now(),
	}, nil
}
