// Package transport holds the outbound delivery clients: Discord webhooks,
// the Telegram bot API, Web Push, and email.
package transport

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrSubscriptionGone is returned by Push when the push service reports the
// endpoint as expired or unregistered (HTTP 404/410).
var ErrSubscriptionGone = errors.New("push subscription gone")

// ErrNotConfigured is returned by transports built without credentials.
var ErrNotConfigured = errors.New("transport not configured")

// newLimiter returns nil for a non-positive rate, meaning "unlimited".
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
