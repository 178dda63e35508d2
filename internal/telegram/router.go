package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/notify"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Members finds the alliance member linked to a Telegram chat.
type Members interface {
	FindUserByTelegramChat(ctx context.Context, chatID string) (*domain.User, error)
}

// Preferences is the member-facing notification service.
type Preferences interface {
	SetGlobalPreference(ctx context.Context, userID string, ch domain.Channel, enabled bool) error
	GlobalPreferences(ctx context.Context, userID string) ([]domain.GlobalPreference, error)
	Inbox(ctx context.Context, userID string, unreadOnly bool) ([]domain.DeliveryRecord, error)
	MarkAllRead(ctx context.Context, userID string) error
	Announce(ctx context.Context, title, body string) (notify.AnnounceResult, error)
}

// Giftcodes adds codes that are then claimed for every member.
type Giftcodes interface {
	Add(ctx context.Context, code, addedBy string, expiresAt *time.Time) (*domain.Giftcode, error)
}

// Router wires Telegram updates to command handlers.
type Router struct {
	bot       Bot
	log       *zap.Logger
	members   Members
	prefs     Preferences
	giftcodes Giftcodes
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, members Members, prefs Preferences, giftcodes Giftcodes) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{bot: bot, log: log, members: members, prefs: prefs, giftcodes: giftcodes}
}

// HandleUpdate routes a single update to the matching handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID

		switch command(msg.Text) {
		case "/start":
			r.handleStart(chatID)
		case "/help":
			r.sendText(chatID, helpText)
		case "/status":
			r.handleStatus(ctx, chatID)
		case "/mute":
			r.handleMute(ctx, chatID, false)
		case "/unmute":
			r.handleMute(ctx, chatID, true)
		case "/settings":
			r.handleSettings(ctx, chatID)
		case "/inbox":
			r.handleInbox(ctx, chatID)
		case "/read":
			r.handleReadAll(ctx, chatID)
		case "/announce":
			r.handleAnnounce(ctx, chatID, msg.Text)
		case "/giftcode":
			r.handleGiftcode(ctx, chatID, msg.Text)
		default:
			// Free-form chatter is ignored.
		}
		return
	}

	if upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil {
		cb := upd.CallbackQuery
		if strings.HasPrefix(cb.Data, toggleData) {
			r.handleToggle(ctx, cb.Message.Chat.ID, strings.TrimPrefix(cb.Data, toggleData), cb.ID)
			return
		}
		_ = r.answerCallback(cb.ID, "")
	}
}

// command extracts "/cmd" from "/cmd@BotName args".
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

// SendMessage sends a plain text message to the given chat.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
