// Package notify delivers best-effort text alerts to the operator's chat
// channel. Delivery failures are logged and swallowed; an alert must never
// take the trading loop down with it.
package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridbot/logger"
)

// Notifier is the alerting collaborator consumed by the decision core.
type Notifier interface {
	Send(text string)
}

// Nop discards every alert. Used in tests and when no channel is configured.
type Nop struct{}

func (Nop) Send(string) {}

// Telegram sends alerts to a Telegram chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram connects the bot API. An error here is fatal to the notifier
// only; callers typically fall back to Nop.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Infof("Telegram notifier ready (bot: %s)", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send posts the text to the configured chat. Failures are swallowed.
func (t *Telegram) Send(text string) {
	if text == "" {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		logger.Warnf("⚠️  Telegram send failed: %v", err)
	}
}
