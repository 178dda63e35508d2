package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// BotSender is the part of *tgbotapi.BotAPI the transport uses.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends reminders through the Telegram bot API.
type Telegram struct {
	bot     BotSender
	limiter *rate.Limiter
}

// NewTelegram creates a Telegram transport. Telegram allows about 30
// messages per second per bot; perSecond <= 0 disables rate limiting.
func NewTelegram(bot BotSender, perSecond float64) *Telegram {
	return &Telegram{bot: bot, limiter: newLimiter(perSecond, 1)}
}

// FormatMessage renders title and body as Telegram Markdown.
func FormatMessage(title, body string) string {
	return "*" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title) + "*\n\n" +
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body)
}

// Send delivers a message to chatID. The bot API client has no context
// support, so the call is abandoned (not cancelled) when ctx expires.
func (t *Telegram) Send(ctx context.Context, chatID, title, body string) error {
	if t.bot == nil {
		return ErrNotConfigured
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", chatID, err)
	}
	if err := wait(ctx, t.limiter); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(id, FormatMessage(title, body))
	msg.ParseMode = tgbotapi.ModeMarkdown

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
