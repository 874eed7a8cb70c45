package adapter

import "context"

// NotificationSink delivers a rendered message to a Telegram recipient.
// Implementations are fire-and-forget: a delivery failure is logged by the
// caller and never fails the billing step that produced it.
type NotificationSink interface {
	Send(ctx context.Context, recipientID int64, text string) error
}
