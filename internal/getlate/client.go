// Package getlate wraps the GetLate posting API behind a typed error
// taxonomy. Every call is timed and logged; transient failures retry
// with bounded backoff.
package getlate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autosocioly/internal/domain"
)

const userAgent = "autosocioly/1.0"

// Client talks to the GetLate API over an authenticated transport.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retries int
	backoff time.Duration
	policy  EndpointPolicy
	logger  *slog.Logger
}

type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration // base backoff unit, defaults to 1s
	Policy     EndpointPolicy // nil means StrictPolicy
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://getlate.dev/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Policy == nil {
		cfg.Policy = StrictPolicy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  newHTTPClient(cfg.Timeout),
		retries: cfg.MaxRetries,
		backoff: cfg.Backoff,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
	}
}

// newHTTPClient builds a pooled HTTP client sized for a handful of
// concurrent platform dispatches.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// PlatformConfig selects one target platform in a create-post request,
// with optional platform-specific parameters.
type PlatformConfig struct {
	Platform string         `json:"platform"`
	Data     map[string]any `json:"platformSpecificData,omitempty"`
}

// MediaItem references one publicly reachable media URL.
type MediaItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// PostRequest is the body of the create-post operation.
type PostRequest struct {
	Content    string           `json:"content"`
	Platforms  []PlatformConfig `json:"platforms"`
	MediaItems []MediaItem      `json:"mediaItems,omitempty"`
}

// PostResponse is the remote API's view of a created post.
type PostResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	Status    string `json:"status,omitempty"`
	Simulated bool   `json:"-"` // set when an EndpointPolicy synthesized this response
}

// Account is one connected social account.
type Account struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	Connected bool   `json:"connected"`
}

// CreatePost submits content for publication. A method-unsupported
// response is delegated to the configured EndpointPolicy, which may
// synthesize a success instead of failing (dev-mode continuity).
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (*PostResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/posts", req)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && te.Kind == domain.KindMethodUnsupported {
			if resp, handled := c.policy.OnMethodUnsupported(req); handled {
				c.logger.Warn("posting endpoint unsupported, policy synthesized success",
					"post_id", resp.ID,
					"platforms", len(req.Platforms),
				)
				return resp, nil
			}
		}
		return nil, err
	}

	var resp PostResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.TransportError{
			Kind:    domain.KindUnexpectedStatus,
			Message: fmt.Sprintf("undecodable create-post response: %v", err),
		}
	}
	return &resp, nil
}

// GetAccounts lists the connected social accounts.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	body, err := c.do(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Accounts []Account `json:"accounts"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, &domain.TransportError{
			Kind:    domain.KindUnexpectedStatus,
			Message: fmt.Sprintf("undecodable accounts response: %v", err),
		}
	}
	return wrapper.Accounts, nil
}

// Healthy checks API reachability and credential validity.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.GetAccounts(ctx)
	return err
}

// do runs one request with bounded retry for transient failures and
// returns the response body on 2xx. All other statuses become typed
// TransportErrors.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, endpoint, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * c.backoff
			c.logger.Warn("retrying getlate request",
				"method", method, "endpoint", endpoint,
				"attempt", attempt+1, "backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctxError(ctx.Err(), method, endpoint)
			case <-time.After(backoff):
			}
		}

		body, err := c.once(ctx, method, endpoint, encoded)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var te *domain.TransportError
		if errors.As(err, &te) && te.Retryable() && attempt < c.retries {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		te := classifyRequestError(err)
		c.logAPICall(method, endpoint, 0, duration, te)
		return nil, te
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	c.logAPICall(method, endpoint, resp.StatusCode, duration, nil)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		return respBody, nil
	}
	return nil, classifyStatus(resp.StatusCode, respBody)
}

func (c *Client) logAPICall(method, endpoint string, status int, d time.Duration, err error) {
	attrs := []any{
		"method", method,
		"endpoint", endpoint,
		"status", status,
		"duration_ms", d.Milliseconds(),
	}
	if err != nil {
		attrs = append(attrs, "err", err)
		c.logger.Error("getlate api call failed", attrs...)
		return
	}
	c.logger.Debug("getlate api call", attrs...)
}

// classifyStatus maps a non-2xx status onto the transport taxonomy.
func classifyStatus(status int, body []byte) *domain.TransportError {
	msg := extractMessage(body)
	switch {
	case status == http.StatusBadRequest:
		return &domain.TransportError{Kind: domain.KindBadRequest, StatusCode: status, Message: msg}
	case status == http.StatusUnauthorized:
		return &domain.TransportError{Kind: domain.KindAuthFailure, StatusCode: status, Message: "invalid API key"}
	case status == http.StatusForbidden:
		return &domain.TransportError{Kind: domain.KindForbidden, StatusCode: status, Message: msg}
	case status == http.StatusNotFound:
		return &domain.TransportError{Kind: domain.KindNotFound, StatusCode: status, Message: "resource not found"}
	case status == http.StatusMethodNotAllowed:
		return &domain.TransportError{Kind: domain.KindMethodUnsupported, StatusCode: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &domain.TransportError{Kind: domain.KindRateLimited, StatusCode: status, Message: msg}
	case status >= 500:
		return &domain.TransportError{Kind: domain.KindServerError, StatusCode: status, Message: msg}
	default:
		return &domain.TransportError{Kind: domain.KindUnexpectedStatus, StatusCode: status, Message: msg}
	}
}

// classifyRequestError maps pre-response failures (dial, timeout) onto
// the taxonomy.
func classifyRequestError(err error) *domain.TransportError {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &domain.TransportError{Kind: domain.KindTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransportError{Kind: domain.KindTimeout, Message: err.Error()}
	}
	return &domain.TransportError{Kind: domain.KindConnection, Message: err.Error()}
}

func ctxError(err error, method, endpoint string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransportError{
			Kind:    domain.KindTimeout,
			Message: fmt.Sprintf("%s %s: deadline exceeded", method, endpoint),
		}
	}
	return err
}

// extractMessage pulls a human-readable message out of an error body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
