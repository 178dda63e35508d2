package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp    Channel = "inapp"
	ChannelDiscord  Channel = "discord"
	ChannelTelegram Channel = "telegram"
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{ChannelInApp, ChannelDiscord, ChannelTelegram, ChannelPush, ChannelEmail}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllChannels {
		if c == ch {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// IsExternal reports whether delivery on ch leaves the process.
func (c Channel) IsExternal() bool {
	return c != ChannelInApp
}

func (c Channel) String() string { return string(c) }

// Category classifies a delivery record.
type Category string

const (
	CategoryEventReminder Category = "event_reminder"
	CategoryGiftcode      Category = "giftcode"
	CategoryAnnouncement  Category = "announcement"
	CategorySystem        Category = "system"
)
