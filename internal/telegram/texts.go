package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

const toggleData = "toggle:"

// UI texts in English
const (
	startFmt = "👋 I send alliance event reminders.\n\n" +
		"Your chat id is %d. Paste it into the Telegram field of your profile, " +
		"then opt in to events you care about."
	helpText = "/status – your channels\n" +
		"/settings – switch channels on or off\n" +
		"/mute – stop Telegram reminders\n" +
		"/unmute – resume Telegram reminders\n" +
		"/inbox – unread notifications\n" +
		"/read – mark everything read\n" +
		"/announce – broadcast to the alliance (R4/R5)\n" +
		"/giftcode – claim a gift code for every member (R4/R5)"
	notLinkedFmt     = "This chat is not linked to a member profile yet. Put %d into the Telegram field of your profile."
	genericErrorText = "Something went wrong. Please try again later."
	mutedText        = "🔕 Telegram reminders are off. Send /unmute to turn them back on."
	unmutedText      = "🔔 Telegram reminders are on."
	settingsText     = "Tap a channel to switch it on or off:"
	inboxEmptyText   = "📭 No unread notifications."
	inboxTitleFmt    = "📬 %d unread:"
	readAllText      = "✅ All notifications marked read."

	leadersOnlyText   = "Only R4 and R5 members can do that."
	announceUsageText = "Usage: /announce Title on the first line, message below it."
	announcedFmt      = "📢 Announcement sent to %d members."

	giftcodeUsageText  = "Usage: /giftcode CODE"
	giftcodeAddedFmt   = "🎁 Gift code %s added. Claiming it for every member now."
	giftcodeExistsText = "That gift code was already added."
)

func channelLabel(ch domain.Channel) string {
	switch ch {
	case domain.ChannelInApp:
		return "In-app"
	case domain.ChannelDiscord:
		return "Discord"
	case domain.ChannelTelegram:
		return "Telegram"
	case domain.ChannelPush:
		return "Push"
	case domain.ChannelEmail:
		return "Email"
	default:
		return string(ch)
	}
}

func statusText(u *domain.User, off map[domain.Channel]bool) string {
	var b strings.Builder
	name := u.Nickname
	if name == "" {
		name = u.GameUserID
	}
	fmt.Fprintf(&b, "🧾 %s, your channels:\n", name)
	for _, ch := range domain.AllChannels {
		mark := "✅"
		if off[ch] {
			mark = "🚫"
		}
		fmt.Fprintf(&b, "\n%s %s", mark, channelLabel(ch))
	}
	return b.String()
}

// mainMenuKeyboard builds the reply keyboard shown after /start.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/settings"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/inbox"),
			tgbotapi.NewKeyboardButton("/help"),
		),
	)
}

// channelsKeyboard has one toggle button per channel.
func channelsKeyboard(off map[domain.Channel]bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		label := "✅ " + channelLabel(ch)
		if off[ch] {
			label = "🚫 " + channelLabel(ch)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, toggleData+string(ch)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
