// File: internal/infra/adapters/telegram/noop_bot.go
package telegram

import (
	"context"
	"log"
	"time"

	"telegram-media-generation/internal/domain/ports/adapter"
)

var _ adapter.TelegramNotifier = (*NoopNotifier)(nil)

// NoopNotifier implements adapter.TelegramNotifier for local/dev testing.
// It logs messages instead of sending real Telegram messages.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (b *NoopNotifier) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("[noop-telegram] To user %d: %s (media=%s)\n", params.ChatID, params.Text, params.MediaURL)
	return nil
}
