package domain

import "time"

// User is an alliance member together with the delivery addresses they
// configured on their profile. Empty strings mean "not configured".
type User struct {
	ID             string
	GameUserID     string
	Nickname       string
	Role           string // r1..r5
	DiscordWebhook string
	TelegramChatID string
	NotifyEmail    string
	CreatedAt      time.Time // UTC
}

// Contact returns the user's destination for an external channel.
// The second result is false when nothing is configured.
func (u *User) Contact(ch Channel) (string, bool) {
	var addr string
	switch ch {
	case ChannelDiscord:
		addr = u.DiscordWebhook
	case ChannelTelegram:
		addr = u.TelegramChatID
	case ChannelEmail:
		addr = u.NotifyEmail
	}
	return addr, addr != ""
}
