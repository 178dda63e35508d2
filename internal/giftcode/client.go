// Package giftcode adds alliance gift codes and claims them for every
// member through the game's redemption API.
package giftcode

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

// errAlreadyClaimed is the API's err_code for a code the player already used.
const errAlreadyClaimed = 40014

// Redeemer claims a code for one player.
type Redeemer interface {
	Redeem(ctx context.Context, playerID, code string) (domain.RedemptionStatus, error)
}

// ClientConfig points the client at the redemption API.
type ClientConfig struct {
	PlayerURL string
	RedeemURL string
	Salt      string
	Rate      float64 // players/s; <= 0 means unlimited
}

// Client talks to the game's gift-code API. Calls are spaced by a rate
// limiter shared by every claim run.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

var _ Redeemer = (*Client)(nil)

// NewClient creates a redemption client.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{cfg: cfg, http: httpClient}
	if cfg.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return c
}

type redeemResponse struct {
	Msg     string `json:"msg"`
	ErrCode *int   `json:"err_code"`
}

// Redeem signs in as playerID and exchanges code. A transport or API error
// is returned together with RedemptionFailed.
func (c *Client) Redeem(ctx context.Context, playerID, code string) (domain.RedemptionStatus, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.RedemptionFailed, err
		}
	}

	resp, err := c.post(ctx, c.cfg.PlayerURL, url.Values{
		"fid":  {playerID},
		"sign": {c.sign(playerID)},
	})
	if err != nil {
		return domain.RedemptionFailed, fmt.Errorf("player sign-in: %w", err)
	}
	drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.RedemptionFailed, fmt.Errorf("player sign-in: status %d", resp.StatusCode)
	}

	resp, err = c.post(ctx, c.cfg.RedeemURL, url.Values{
		"fid":  {playerID},
		"cdk":  {code},
		"sign": {c.sign(playerID + code)},
	})
	if err != nil {
		return domain.RedemptionFailed, fmt.Errorf("redeem: %w", err)
	}
	defer drain(resp)

	var out redeemResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return domain.RedemptionFailed, fmt.Errorf("redeem: status %d: decode: %w", resp.StatusCode, err)
	}
	switch {
	case out.ErrCode != nil && *out.ErrCode == errAlreadyClaimed:
		return domain.RedemptionAlreadyClaimed, nil
	case out.ErrCode != nil && *out.ErrCode == 0:
		return domain.RedemptionSuccess, nil
	case out.ErrCode == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.RedemptionSuccess, nil
	case out.ErrCode != nil:
		return domain.RedemptionFailed, fmt.Errorf("redeem: err_code %d: %s", *out.ErrCode, out.Msg)
	default:
		return domain.RedemptionFailed, fmt.Errorf("redeem: status %d: %s", resp.StatusCode, out.Msg)
	}
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.http.Do(req)
}

// sign is the API's request signature: hex md5 of input followed by the salt.
func (c *Client) sign(input string) string {
	sum := md5.Sum([]byte(input + c.cfg.Salt))
	return hex.EncodeToString(sum[:])
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
