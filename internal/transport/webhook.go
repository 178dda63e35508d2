package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// discordBlurple is the embed accent colour.
const discordBlurple = 0x5865F2

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Webhook posts messages to Discord-style incoming webhooks.
type Webhook struct {
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewWebhook creates a webhook transport. perSecond <= 0 disables rate limiting.
func NewWebhook(client *http.Client, perSecond float64) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{
		client:  client,
		limiter: newLimiter(perSecond, 5),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Send posts one embed to url.
func (w *Webhook) Send(ctx context.Context, url, title, body string) error {
	buf, err := json.Marshal(discordPayload{Embeds: []discordEmbed{{
		Title:       title,
		Description: body,
		Color:       discordBlurple,
		Timestamp:   w.now().Format(time.RFC3339),
	}}})
	if err != nil {
		return err
	}
	if err := wait(ctx, w.limiter); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
