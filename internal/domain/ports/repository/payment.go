package repository

import (
	"context"
	"time"

	"telegram-market-billing/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByInvoiceID(ctx context.Context, qx Tx, invoiceID string) (*model.Payment, error)
	// ListPendingSince returns pending payments created at or after cutoff.
	// Older pending rows are treated as abandoned and never re-queried.
	ListPendingSince(ctx context.Context, qx Tx, cutoff time.Time, limit int) ([]*model.Payment, error)
	// UpdateStatusIfPending transitions pending→status atomically and reports
	// whether this call performed the transition. Finalization side effects
	// are gated on the true result so re-runs never double-apply.
	UpdateStatusIfPending(ctx context.Context, qx Tx, id string, status model.PaymentStatus) (bool, error)
}
