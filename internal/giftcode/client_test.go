package giftcode

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

type apiStub struct {
	mu          sync.Mutex
	playerCode  int
	redeemCode  int
	redeemBody  string
	playerForms []map[string]string
	redeemForms []map[string]string
}

func (a *apiStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/player", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		a.mu.Lock()
		a.playerForms = append(a.playerForms, flatten(r))
		code := a.playerCode
		a.mu.Unlock()
		w.WriteHeader(code)
	})
	mux.HandleFunc("/gift_code", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		a.mu.Lock()
		a.redeemForms = append(a.redeemForms, flatten(r))
		code, body := a.redeemCode, a.redeemBody
		a.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func flatten(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		PlayerURL: srv.URL + "/player",
		RedeemURL: srv.URL + "/gift_code",
		Salt:      "salt",
	}, srv.Client())
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestRedeemSignsBothRequests(t *testing.T) {
	api := &apiStub{playerCode: http.StatusOK, redeemCode: http.StatusOK, redeemBody: `{"msg":"SUCCESS","err_code":0}`}
	c := newTestClient(api.server(t))

	status, err := c.Redeem(context.Background(), "123456", "WOS2025")
	require.NoError(t, err)
	assert.Equal(t, domain.RedemptionSuccess, status)

	require.Len(t, api.playerForms, 1)
	assert.Equal(t, "123456", api.playerForms[0]["fid"])
	assert.Equal(t, md5Hex("123456salt"), api.playerForms[0]["sign"])
	require.Len(t, api.redeemForms, 1)
	assert.Equal(t, "WOS2025", api.redeemForms[0]["cdk"])
	assert.Equal(t, md5Hex("123456WOS2025salt"), api.redeemForms[0]["sign"])
}

func TestRedeemStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		playerCode int
		redeemCode int
		body       string
		want       domain.RedemptionStatus
		wantErr    bool
	}{
		{"already claimed", http.StatusOK, http.StatusOK, `{"msg":"RECEIVED.","err_code":40014}`, domain.RedemptionAlreadyClaimed, false},
		{"api error", http.StatusOK, http.StatusOK, `{"msg":"CDK NOT FOUND.","err_code":40008}`, domain.RedemptionFailed, true},
		{"no err_code on 2xx", http.StatusOK, http.StatusOK, `{"msg":"ok"}`, domain.RedemptionSuccess, false},
		{"no err_code on 5xx", http.StatusOK, http.StatusBadGateway, `{"msg":"bad gateway"}`, domain.RedemptionFailed, true},
		{"garbage body", http.StatusOK, http.StatusOK, `<html>`, domain.RedemptionFailed, true},
		{"player sign-in rejected", http.StatusForbidden, http.StatusOK, `{"err_code":0}`, domain.RedemptionFailed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &apiStub{playerCode: tc.playerCode, redeemCode: tc.redeemCode, redeemBody: tc.body}
			status, err := newTestClient(api.server(t)).Redeem(context.Background(), "1", "CODE")
			assert.Equal(t, tc.want, status)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedeemWaitsForRateLimit(t *testing.T) {
	api := &apiStub{playerCode: http.StatusOK, redeemCode: http.StatusOK, redeemBody: `{"err_code":0}`}
	srv := api.server(t)
	c := NewClient(ClientConfig{PlayerURL: srv.URL + "/player", RedeemURL: srv.URL + "/gift_code", Rate: 0.001}, srv.Client())

	_, err := c.Redeem(context.Background(), "1", "CODE")
	require.NoError(t, err)

	// The next token is ~1000s away, past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	status, err := c.Redeem(ctx, "2", "CODE")
	assert.Error(t, err)
	assert.Equal(t, domain.RedemptionFailed, status)
	assert.Len(t, api.playerForms, 1)
}
