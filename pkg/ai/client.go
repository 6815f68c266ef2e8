// Package ai provides the HTTP client for the generative recommendation
// provider. It supports per-request timeouts, retry with exponential backoff,
// and optional proxy egress. The provider is assumed slow and unreliable;
// callers must wrap it with a circuit breaker.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of attempts per call.
	DefaultMaxRetries = 3

	// UserAgent identifies ReelGuard to the provider.
	UserAgent = "ReelGuard/1.0"
)

// RetryBackoffs are the waits between attempts (exponential: 500ms, 1s, 2s).
// These sit inside the circuit breaker's operation timeout, so they are
// deliberately shorter than the caller-facing retry delays of the
// orchestrator.
var RetryBackoffs = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

// recommendRequest is the wire request to POST /v1/recommendations.
type recommendRequest struct {
	UserID int64    `json:"user_id"`
	Genres []string `json:"genres,omitempty"`
	Limit  int      `json:"limit"`
}

// recommendResponse is the provider's response envelope.
type recommendResponse struct {
	Items      []*model.MovieItem `json:"items"`
	Confidence float64            `json:"confidence"`
}

// errorResponse is the provider's error envelope.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client calls the generative recommendation provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a provider client from configuration.
func NewClient(c *conf.Provider) (*Client, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient, err := newHTTPClient(c.ProxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(c.BaseURL, "/"),
		apiKey:     c.APIKey,
		httpClient: httpClient,
		maxRetries: DefaultMaxRetries,
	}, nil
}

// GetRecommendations requests recommendations for a user. Retries on network
// errors, 429 and 5xx; other 4xx responses fail immediately. The caller's
// context bounds the whole call including backoff waits.
func (c *Client) GetRecommendations(ctx context.Context, req *model.RecommendationRequest) ([]*model.MovieItem, float64, error) {
	if req == nil || req.UserID <= 0 {
		return nil, 0, fmt.Errorf("invalid recommendation request")
	}

	endpoint := c.baseURL + "/v1/recommendations"

	payload, err := json.Marshal(&recommendRequest{
		UserID: req.UserID,
		Genres: req.Genres,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := RetryBackoffs[attempt-1]
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", UserAgent)
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// Network error, retryable unless the context is gone
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = fmt.Errorf("attempt %d: request failed: %w", attempt+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: failed to read response: %w", attempt+1, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var rec recommendResponse
			if err := json.Unmarshal(body, &rec); err != nil {
				return nil, 0, fmt.Errorf("invalid response format: %w", err)
			}
			return rec.Items, rec.Confidence, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("attempt %d: rate limited (HTTP 429): %s", attempt+1, string(body))

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("attempt %d: server error (HTTP %d): %s", attempt+1, resp.StatusCode, string(body))

		case resp.StatusCode >= 400:
			// Client errors are not retryable
			var errResp errorResponse
			_ = json.Unmarshal(body, &errResp)
			msg := string(body)
			if errResp.Error.Message != "" {
				msg = errResp.Error.Message
			}
			return nil, 0, fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, msg)

		default:
			lastErr = fmt.Errorf("attempt %d: unexpected status code %d", attempt+1, resp.StatusCode)
		}
	}

	return nil, 0, fmt.Errorf("all retry attempts exhausted: %w", lastErr)
}

// newHTTPClient creates an HTTP client with optional proxy support.
func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			dialer, err := newSOCKS5Dialer(parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}

		case "http", "https":
			transport.Proxy = func(req *http.Request) (*url.URL, error) {
				return parsed, nil
			}

		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", parsed.Scheme)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// newSOCKS5Dialer creates a SOCKS5 proxy dialer with optional auth.
func newSOCKS5Dialer(parsed *url.URL) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{
			User:     parsed.User.Username(),
			Password: password,
		}
	}

	host := parsed.Host
	if !strings.Contains(host, ":") {
		host += ":1080" // SOCKS5 default port
	}

	return proxy.SOCKS5("tcp", host, auth, proxy.Direct)
}
