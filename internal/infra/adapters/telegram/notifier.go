// File: internal/infra/adapters/telegram/notifier.go
package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-media-generation/internal/config"
	"telegram-media-generation/internal/domain/ports/adapter"
)

var _ adapter.TelegramNotifier = (*RealNotifier)(nil)

// RealNotifier delivers generation results into the user's Telegram chat.
// Media results are sent as photo/video attachments by URL so Telegram's
// servers do the download.
type RealNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewRealNotifier(cfg *config.TelegramConfig) (*RealNotifier, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram token empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return &RealNotifier{bot: bot}, nil
}

func (r *RealNotifier) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.Chattable
	switch {
	case params.MediaURL != "" && params.IsVideo:
		v := tgbotapi.NewVideo(params.ChatID, tgbotapi.FileURL(params.MediaURL))
		v.Caption = params.Text
		msg = v
	case params.MediaURL != "":
		p := tgbotapi.NewPhoto(params.ChatID, tgbotapi.FileURL(params.MediaURL))
		p.Caption = params.Text
		msg = p
	default:
		msg = tgbotapi.NewMessage(params.ChatID, params.Text)
	}

	_, err := r.bot.Send(msg)
	return err
}
