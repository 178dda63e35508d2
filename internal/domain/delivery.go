package domain

import (
	"fmt"
	"time"
)

// DeliveryRecord is one entry of the in-app notification log. It is written
// once per (user, channel) attempt; only Read ever changes afterwards.
type DeliveryRecord struct {
	ID       string
	UserID   string
	EventID  *string
	Category Category
	Channel  Channel
	Title    string
	Body     string
	Read     bool
	SentAt   time.Time // UTC
}

// PushSubscription is a browser/PWA Web Push endpoint. Endpoint is unique.
type PushSubscription struct {
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// ReminderText builds the title and body of an event reminder. Only the
// zero lead-time reads differently.
func ReminderText(eventName, startTime string, leadMinutes int) (title, body string) {
	if leadMinutes == 0 {
		title = fmt.Sprintf("🎯 %s is starting now!", eventName)
		body = fmt.Sprintf("The event %q has just started (%s UTC).", eventName, startTime)
		return title, body
	}
	title = fmt.Sprintf("⏰ %s starts in %d minutes", eventName, leadMinutes)
	body = fmt.Sprintf("%q starts at %s UTC, %d minutes to go.", eventName, startTime, leadMinutes)
	return title, body
}
