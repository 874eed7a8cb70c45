package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-market-billing/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*Notifier)(nil)

// Notifier delivers billing messages via the Bot API. The engine only ever
// pushes text; it never polls updates.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

func NewNotifier(token string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot}, nil
}

func (n *Notifier) Send(ctx context.Context, recipientID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(recipientID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := n.bot.Send(msg)
	return err
}
