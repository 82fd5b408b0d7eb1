package notify

import (
	"context"
	"fmt"

	"portfolioLedger/internal/ports"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers operator alerts to a Telegram chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram creates the Telegram notifier. Fails if the token is rejected
// by the Bot API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert implements ports.Notifier.
func (t *Telegram) Alert(ctx context.Context, subject, body string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	msg := tgbot.NewMessage(t.chatID, fmt.Sprintf("⚠️ %s\n\n%s", subject, body))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}

// Log is the fallback notifier used when no Telegram credentials are
// configured; alerts land in the log at error level so they still reach an
// operator watching the process.
type Log struct {
	logger ports.Logger
}

// NewLog creates the log-only notifier.
func NewLog(logger ports.Logger) *Log {
	return &Log{logger: logger}
}

// Alert implements ports.Notifier.
func (l *Log) Alert(ctx context.Context, subject, body string) error {
	l.logger.Error(ctx, nil, "OPERATOR ALERT: "+subject, map[string]interface{}{"detail": body})
	return nil
}
