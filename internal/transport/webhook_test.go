package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSendsDiscordEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.Client(), 0)
	w.now = func() time.Time { return time.Date(2025, time.May, 7, 13, 55, 0, 0, time.UTC) }
	require.NoError(t, w.Send(context.Background(), srv.URL, "Bear Hunt", "in 5 minutes"))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Bear Hunt", got.Embeds[0].Title)
	assert.Equal(t, "in 5 minutes", got.Embeds[0].Description)
	assert.Equal(t, discordBlurple, got.Embeds[0].Color)
	assert.Equal(t, "2025-05-07T13:55:00Z", got.Embeds[0].Timestamp)
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhook(srv.Client(), 0).Send(context.Background(), srv.URL, "t", "b")
	assert.ErrorContains(t, err, "429")
}

func TestWebhookHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewWebhook(srv.Client(), 0).Send(ctx, srv.URL, "t", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebhookRateLimiterWaitRespectsContext(t *testing.T) {
	w := NewWebhook(nil, 0.001)
	// Drain the burst.
	for i := 0; i < 5; i++ {
		require.True(t, w.limiter.Allow())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, w.Send(ctx, "http://127.0.0.1:1", "t", "b"))
}
