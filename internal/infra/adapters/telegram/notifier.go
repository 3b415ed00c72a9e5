package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/metrics"
)

var _ adapter.Notifier = (*BotNotifier)(nil)

// BotNotifier delivers owner notifications through the Telegram Bot API.
// Delivery is best effort: one retry with a short backoff, then the failure
// is logged and dropped. Callers never block on it.
type BotNotifier struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

func NewBotNotifier(token string, logger *zerolog.Logger) (*BotNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "BotNotifier").Logger()
	return &BotNotifier{bot: bot, log: &l}, nil
}

func (n *BotNotifier) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	_, err := n.bot.Send(msg)
	if err == nil {
		metrics.IncNotify("ok")
		return nil
	}

	// one short-backoff retry, honoring caller cancellation
	select {
	case <-ctx.Done():
		metrics.IncNotify("error")
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	if _, err = n.bot.Send(msg); err != nil {
		metrics.IncNotify("error")
		n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("notification dropped")
		return err
	}
	metrics.IncNotify("ok")
	return nil
}
