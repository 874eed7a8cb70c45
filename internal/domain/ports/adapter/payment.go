package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InvoiceStatus mirrors the gateway's invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusCreated    InvoiceStatus = "created"
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusSuccess    InvoiceStatus = "success"
	InvoiceStatusFailure    InvoiceStatus = "failure"
	InvoiceStatusExpired    InvoiceStatus = "expired"
)

// Terminal reports whether the gateway will never change this status again.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusSuccess || s == InvoiceStatusFailure || s == InvoiceStatusExpired
}

// GatewayErrorCode classifies synchronous charge rejections. Codes are decoded
// once, at the gateway client boundary; nothing downstream re-parses text.
type GatewayErrorCode string

const (
	GatewayCodeTokenNotFound GatewayErrorCode = "TOKEN_NOT_FOUND" // stored token permanently invalid
	GatewayCodeCardDeclined  GatewayErrorCode = "CARD_DECLINED"
	GatewayCodeUnknown       GatewayErrorCode = "UNKNOWN"
)

// GatewayError is a structured, machine-readable gateway rejection.
type GatewayError struct {
	Code GatewayErrorCode
	Text string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Text)
}

// ErrGatewayUnavailable marks transport failures and unparseable non-200
// responses. It never means the charge did not happen; callers must reconcile
// via a status query rather than re-charge.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// InvoiceRequest describes a charge the engine wants the gateway to create.
type InvoiceRequest struct {
	UserID      int64
	ProductName string
	Months      int
	Price       float64
}

type CreatedInvoice struct {
	OrderRef  string
	InvoiceID string
	PayURL    string
}

// TokenizedInvoice additionally carries the wallet id under which the
// gateway will save the payer's card.
type TokenizedInvoice struct {
	CreatedInvoice
	WalletID string
}

type TokenCharge struct {
	OrderRef  string
	InvoiceID string
}

// StatusResult is the gateway's answer to a status query — the single source
// of truth for charge outcomes.
type StatusResult struct {
	InvoiceID     string
	Status        InvoiceStatus
	FailureReason string
	MaskedPan     string
	PaymentSystem string
	CardToken     string // populated when the status payload carries walletData
	ModifiedAt    time.Time
}

type WalletCard struct {
	CardToken string
	MaskedPan string
	Brand     string
}

// PaymentGateway is the port for the external card-payment provider. It holds
// no business logic: callers decide what a failure means.
type PaymentGateway interface {
	Name() string

	// CreateInvoice opens a plain interactive invoice.
	CreateInvoice(ctx context.Context, req InvoiceRequest) (CreatedInvoice, error)
	// CreateTokenizedInvoice opens an interactive invoice that saves the card
	// under a fresh wallet id for later merchant-initiated charges.
	CreateTokenizedInvoice(ctx context.Context, req InvoiceRequest) (TokenizedInvoice, error)
	// ChargeToken runs a merchant-initiated charge against a stored token.
	// Synchronous rejections surface as *GatewayError.
	ChargeToken(ctx context.Context, walletID, cardToken string, req InvoiceRequest) (TokenCharge, error)
	// InvoiceStatus queries the current state of an invoice.
	InvoiceStatus(ctx context.Context, invoiceID string) (StatusResult, error)
	// WalletCards lists the cards saved under a wallet — the fallback path for
	// recovering a token the status payload did not carry.
	WalletCards(ctx context.Context, walletID string) ([]WalletCard, error)
	// CancelInvoice voids an unsettled invoice.
	CancelInvoice(ctx context.Context, invoiceID string) error
}
