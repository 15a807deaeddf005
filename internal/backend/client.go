// Package backend provides the client for the Amplify creator API.
// Lookups are keyed by channel id; a missing creator is an expected outcome
// (most channel owners are not registered) and is reported as a nil record,
// not an error.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/metrics"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Maximum response body size (1MB). Creator records are tiny; anything
// larger is not a response we want to decode.
const maxResponseSize = 1 << 20

const userAgent = "amplify-agent/1.0"

// Client talks to the Amplify backend API.
type Client struct {
	base string
	http *http.Client
}

// New creates a backend client for the given API base URL.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

// Creator looks up a creator by channel id.
// Returns (nil, nil) when the creator is not registered. Network and decode
// failures are returned as errors; the caller decides whether to surface them.
func (c *Client) Creator(ctx context.Context, channelID string) (*types.CreatorInfo, error) {
	if channelID == "" {
		return nil, &types.BackendError{
			Endpoint: "/creator",
			Message:  "channelId is required",
			Err:      types.ErrIdentityUnresolved,
		}
	}

	endpoint := fmt.Sprintf("%s/creator?channelId=%s", c.base, url.QueryEscape(channelID))
	var info types.CreatorInfo
	found, err := c.getJSON(ctx, endpoint, "/creator", &info)
	if err != nil || !found {
		return nil, err
	}

	info.Registered = true
	if err := info.Validate(); err != nil {
		return nil, &types.BackendError{
			Endpoint: "/creator",
			Message:  "creator record failed validation: " + err.Error(),
			Err:      err,
		}
	}

	log.Debug().
		Str("channel_id", info.ChannelID).
		Str("channel_name", info.ChannelName).
		Float64("default_tip", info.DefaultTipAmount).
		Msg("Creator record fetched")

	return &info, nil
}

// CreatorByWallet looks up a creator by wallet address.
// Returns (nil, nil) when no creator owns the wallet.
func (c *Client) CreatorByWallet(ctx context.Context, wallet string) (*types.CreatorInfo, error) {
	endpoint := fmt.Sprintf("%s/creator?walletAddress=%s", c.base, url.QueryEscape(wallet))
	var info types.CreatorInfo
	found, err := c.getJSON(ctx, endpoint, "/creator", &info)
	if err != nil || !found {
		return nil, err
	}
	info.Registered = true
	return &info, nil
}

// UpdateSettings updates a creator's settings, keyed by wallet address.
func (c *Client) UpdateSettings(ctx context.Context, wallet string, settings types.CreatorSettings) error {
	endpoint := fmt.Sprintf("%s/creator/settings?wallet_address=%s", c.base, url.QueryEscape(wallet))

	body, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest("/creator/settings", "error")
		return &types.BackendError{Endpoint: "/creator/settings", Message: "settings update failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordBackendRequest("/creator/settings", "error")
		return &types.BackendError{
			Endpoint:   "/creator/settings",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("settings update returned status %d", resp.StatusCode),
		}
	}
	metrics.RecordBackendRequest("/creator/settings", "ok")
	return nil
}

// RecordTip reports a confirmed tip to the backend. Failures here are
// logged by callers but never shown to the user; the payment already went
// through.
func (c *Client) RecordTip(ctx context.Context, tip types.TipRecord) error {
	body, err := json.Marshal(tip)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/tip", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest("/tip", "error")
		return &types.BackendError{Endpoint: "/tip", Message: "tip recording failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordBackendRequest("/tip", "error")
		return &types.BackendError{
			Endpoint:   "/tip",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("tip recording returned status %d", resp.StatusCode),
		}
	}
	metrics.RecordBackendRequest("/tip", "ok")

	log.Info().
		Str("channel_id", tip.ChannelID).
		Float64("amount", tip.Amount).
		Msg("Tip recorded with backend")
	return nil
}

// Stats fetches aggregate tip statistics for a channel.
func (c *Client) Stats(ctx context.Context, channelID string) (*types.ChannelStats, error) {
	endpoint := fmt.Sprintf("%s/stats/%s", c.base, url.PathEscape(channelID))
	var stats types.ChannelStats
	found, err := c.getJSON(ctx, endpoint, "/stats", &stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &types.BackendError{
			Endpoint:   "/stats",
			StatusCode: http.StatusNotFound,
			Message:    "channel not registered",
			Err:        types.ErrCreatorUnknown,
		}
	}
	return &stats, nil
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest("/health", "error")
		return &types.BackendError{Endpoint: "/health", Message: "health check failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordBackendRequest("/health", "error")
		return &types.BackendError{
			Endpoint:   "/health",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("health check returned status %d", resp.StatusCode),
		}
	}
	metrics.RecordBackendRequest("/health", "ok")
	return nil
}

// getJSON issues a GET and decodes the response into out.
// Returns found=false on 404 without an error.
func (c *Client) getJSON(ctx context.Context, endpoint, name string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(name, "error")
		return false, &types.BackendError{Endpoint: name, Message: "request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.RecordBackendRequest(name, "not_found")
		return false, nil
	case resp.StatusCode != http.StatusOK:
		metrics.RecordBackendRequest(name, "error")
		return false, &types.BackendError{
			Endpoint:   name,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status code %d from %s", resp.StatusCode, name),
		}
	}
	metrics.RecordBackendRequest(name, "ok")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, &types.BackendError{Endpoint: name, Message: "failed to read response: " + err.Error(), Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, &types.BackendError{Endpoint: name, Message: "failed to decode response: " + err.Error(), Err: err}
	}
	return true, nil
}
