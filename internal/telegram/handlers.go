package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/store"
)

const inboxPreview = 5

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	if err := r.SendMessage(chatID, text); err != nil {
		r.log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

// linkedUser returns the member whose profile holds this chat id. It
// replies to the chat itself when there is none.
func (r *Router) linkedUser(ctx context.Context, chatID int64) (*domain.User, bool) {
	u, err := r.members.FindUserByTelegramChat(ctx, strconv.FormatInt(chatID, 10))
	switch {
	case err == nil:
		return u, true
	case errors.Is(err, store.ErrNotFound):
		r.sendText(chatID, fmt.Sprintf(notLinkedFmt, chatID))
	default:
		r.log.Error("find user by chat failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
	}
	return nil, false
}

// disabledChannels returns the channels the member switched off globally.
func (r *Router) disabledChannels(ctx context.Context, userID string) (map[domain.Channel]bool, error) {
	prefs, err := r.prefs.GlobalPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	off := make(map[domain.Channel]bool, len(prefs))
	for _, p := range prefs {
		if !p.Enabled {
			off[p.Channel] = true
		}
	}
	return off, nil
}

// --- Commands ---

func (r *Router) handleStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(startFmt, chatID))
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	off, err := r.disabledChannels(ctx, u.ID)
	if err != nil {
		r.log.Error("read global preferences failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	r.sendText(chatID, statusText(u, off))
}

func (r *Router) handleMute(ctx context.Context, chatID int64, enabled bool) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	if err := r.prefs.SetGlobalPreference(ctx, u.ID, domain.ChannelTelegram, enabled); err != nil {
		r.log.Error("set telegram preference failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	if enabled {
		r.sendText(chatID, unmutedText)
		return
	}
	r.sendText(chatID, mutedText)
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	off, err := r.disabledChannels(ctx, u.ID)
	if err != nil {
		r.log.Error("read global preferences failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	msg := tgbotapi.NewMessage(chatID, settingsText)
	msg.ReplyMarkup = channelsKeyboard(off)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) handleToggle(ctx context.Context, chatID int64, raw, cbID string) {
	ch, err := domain.ParseChannel(raw)
	if err != nil {
		_ = r.answerCallback(cbID, "Unknown channel")
		return
	}
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		_ = r.answerCallback(cbID, "")
		return
	}
	off, err := r.disabledChannels(ctx, u.ID)
	if err != nil {
		r.log.Error("read global preferences failed", zap.String("user_id", u.ID), zap.Error(err))
		_ = r.answerCallback(cbID, genericErrorText)
		return
	}
	enable := off[ch]
	if err := r.prefs.SetGlobalPreference(ctx, u.ID, ch, enable); err != nil {
		r.log.Error("set global preference failed", zap.String("user_id", u.ID), zap.String("channel", ch.String()), zap.Error(err))
		_ = r.answerCallback(cbID, genericErrorText)
		return
	}
	off[ch] = !enable

	state := "off"
	if enable {
		state = "on"
	}
	_ = r.answerCallback(cbID, fmt.Sprintf("%s %s", channelLabel(ch), state))

	msg := tgbotapi.NewMessage(chatID, settingsText)
	msg.ReplyMarkup = channelsKeyboard(off)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) handleInbox(ctx context.Context, chatID int64) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	recs, err := r.prefs.Inbox(ctx, u.ID, true)
	if err != nil {
		r.log.Error("read inbox failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	if len(recs) == 0 {
		r.sendText(chatID, inboxEmptyText)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, inboxTitleFmt, len(recs))
	for i, rec := range recs {
		if i == inboxPreview {
			fmt.Fprintf(&b, "\n…and %d more", len(recs)-inboxPreview)
			break
		}
		fmt.Fprintf(&b, "\n• %s (%s)", rec.Title, rec.SentAt.UTC().Format("Mon 15:04 UTC"))
	}
	r.sendText(chatID, b.String())
}

func (r *Router) handleReadAll(ctx context.Context, chatID int64) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	if err := r.prefs.MarkAllRead(ctx, u.ID); err != nil {
		r.log.Error("mark all read failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	r.sendText(chatID, readAllText)
}

// leaderRoles may broadcast announcements.
var leaderRoles = map[string]bool{"r4": true, "r5": true}

// handleAnnounce broadcasts "/announce Title\nBody" to every member.
func (r *Router) handleAnnounce(ctx context.Context, chatID int64, text string) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	if !leaderRoles[strings.ToLower(u.Role)] {
		r.sendText(chatID, leadersOnlyText)
		return
	}

	title, body, _ := strings.Cut(commandArgs(text), "\n")
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" || body == "" {
		r.sendText(chatID, announceUsageText)
		return
	}

	res, err := r.prefs.Announce(ctx, title, body)
	if err != nil {
		r.log.Error("announce failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
		return
	}
	r.log.Info("announcement sent from telegram", zap.String("user_id", u.ID), zap.Int("recipients", res.Recipients))
	r.sendText(chatID, fmt.Sprintf(announcedFmt, len(res.Reports)))
}

// handleGiftcode adds "/giftcode CODE" and starts claiming it for everyone.
func (r *Router) handleGiftcode(ctx context.Context, chatID int64, text string) {
	u, ok := r.linkedUser(ctx, chatID)
	if !ok {
		return
	}
	if !leaderRoles[strings.ToLower(u.Role)] {
		r.sendText(chatID, leadersOnlyText)
		return
	}

	g, err := r.giftcodes.Add(ctx, commandArgs(text), u.ID, nil)
	switch {
	case err == nil:
		r.sendText(chatID, fmt.Sprintf(giftcodeAddedFmt, g.Code))
	case errors.Is(err, domain.ErrInvalidGiftcode):
		r.sendText(chatID, giftcodeUsageText)
	case errors.Is(err, store.ErrConflict):
		r.sendText(chatID, giftcodeExistsText)
	default:
		r.log.Error("add gift code failed", zap.String("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericErrorText)
	}
}

// commandArgs returns the text after the leading "/cmd" token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
}
