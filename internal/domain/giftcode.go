package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrInvalidGiftcode = errors.New("invalid gift code")

// MaxGiftcodeLen bounds the length of a gift code.
const MaxGiftcodeLen = 50

// Giftcode is an in-game reward code the alliance claims for every member.
type Giftcode struct {
	ID        string
	Code      string
	AddedBy   string
	ExpiresAt *time.Time // nil = never expires
	IsActive  bool
	CreatedAt time.Time
}

// Claimable reports whether the code may still be redeemed at now.
func (g *Giftcode) Claimable(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// RedemptionStatus is the result of claiming a code for one member.
type RedemptionStatus string

const (
	RedemptionSuccess        RedemptionStatus = "success"
	RedemptionFailed         RedemptionStatus = "failed"
	RedemptionAlreadyClaimed RedemptionStatus = "already_claimed"
)

// Redemption records one claim attempt.
type Redemption struct {
	ID         string
	GiftcodeID string
	UserID     string
	Status     RedemptionStatus
	RedeemedAt time.Time
}

// NormalizeGiftcode trims code and checks its length.
func NormalizeGiftcode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGiftcode)
	}
	if utf8.RuneCountInString(code) > MaxGiftcodeLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidGiftcode, MaxGiftcodeLen)
	}
	return code, nil
}

// GiftcodeClaimedText returns the title and body sent after a successful claim.
func GiftcodeClaimedText(code string) (title, body string) {
	return "🎁 Gift Code Claimed!",
		fmt.Sprintf("Gift code %q has been successfully claimed for your account.", code)
}
