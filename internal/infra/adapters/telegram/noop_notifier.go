package telegram

import (
	"context"
	"log"

	"telegram-market-billing/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*NoopNotifier)(nil)

// NoopNotifier implements adapter.NotificationSink for local/dev runs.
// It logs messages instead of sending real Telegram messages.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) Send(ctx context.Context, recipientID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("[noop-telegram] To user %d: %s\n", recipientID, text)
	return nil
}
