// Package turnstile verifies Cloudflare Turnstile tokens against the
// siteverify API. Verification fails closed: a transport error, a non-2xx
// response, an unparseable body, and success:false all resolve to rejection.
package turnstile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/velocityfunds/waitlist-service/internal/config"
	"github.com/velocityfunds/waitlist-service/internal/pkg/logger"
)

const defaultBaseURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Client calls the Turnstile siteverify endpoint. One call per submission;
// no retries, since a failed verification is a user-facing rejection rather
// than a transient server fault.
type Client struct {
	secret     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a verification client from configuration.
func NewClient(cfg config.TurnstileConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		secret:     cfg.Secret,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL overrides the verification endpoint (tests).
func NewClientWithBaseURL(cfg config.TurnstileConfig, baseURL string) *Client {
	c := NewClient(cfg)
	c.baseURL = baseURL
	return c
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks a client-supplied token, passing the source IP along when
// known. Returns false on any ambiguity.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) bool {
	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("turnstile verify transport error", "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("turnstile verify non-2xx", "status", resp.StatusCode)
		return false
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Warn("turnstile verify bad body", "error", err.Error())
		return false
	}
	if !result.Success {
		logger.Debug("turnstile verify rejected", "codes", strings.Join(result.ErrorCodes, ","))
	}
	return result.Success
}
