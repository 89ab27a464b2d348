package adapter

import "context"

type SendMessageParams struct {
	ChatID   int64
	Text     string
	MediaURL string // when set, sent as photo/video attachment
	IsVideo  bool
}

// TelegramNotifier delivers generation results and failure notices back to
// the user's chat. Delivery is best-effort: a notification failure never
// fails the state transition that triggered it.
type TelegramNotifier interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
}
