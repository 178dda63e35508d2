package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

// DefaultPushTTL keeps a push message queued for an offline device for an hour.
const DefaultPushTTL = 60 * 60

// PushConfig holds the VAPID identity of this server.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact email, with or without mailto:
	TTL             int    // seconds
}

// Push sends Web Push notifications signed with VAPID.
type Push struct {
	cfg    PushConfig
	client webpush.HTTPClient
}

// NewPush creates a Web Push transport. It returns nil when the VAPID keys
// are missing, which leaves the push channel disabled.
func NewPush(cfg PushConfig, client *http.Client) *Push {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultPushTTL
	}
	// webpush-go adds the mailto: scheme itself.
	cfg.Subscriber = strings.TrimPrefix(cfg.Subscriber, "mailto:")
	if client == nil {
		client = &http.Client{}
	}
	return &Push{cfg: cfg, client: client}
}

// Send encrypts payload for sub and posts it to the push service.
func (p *Push) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload,
		&webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		},
		&webpush.Options{
			HTTPClient:      p.client,
			Subscriber:      p.cfg.Subscriber,
			TTL:             p.cfg.TTL,
			Urgency:         webpush.UrgencyHigh,
			VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		},
	)
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("web push status %d: %w", resp.StatusCode, ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push status %d", resp.StatusCode)
	}
	return nil
}
