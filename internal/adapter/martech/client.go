// Package martech connects the action engine to the marketing
// capability services and registers their tools.
package martech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/adapter/otel"
	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/pool"
)

// Client talks to the capability gateway. Every call passes through the
// shared outbound pool so one burst of workflows cannot exhaust the
// upstreams.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pool       *pool.Pool
}

// NewClient creates a capability client from configuration.
func NewClient(cfg config.Capability, p *pool.Pool) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pool: p,
	}
}

// post sends a JSON payload and returns the decoded response body.
func (c *Client) post(ctx context.Context, path string, payload any) (map[string]any, error) {
	ctx, span := otel.StartCapabilityCallSpan(ctx, path)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var result map[string]any
	err = c.pool.Run(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return classifyTransportError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.Transient(domain.TransientConnection, fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, data)
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(domain.TransientTimeout, err)
	}
	return domain.Transient(domain.TransientConnection, err)
}

func classifyStatus(status int, data []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.Transient(domain.TransientRateLimit, fmt.Errorf("capability API error %d: %s", status, data))
	case status >= 500:
		return domain.Transient(domain.TransientUpstream, fmt.Errorf("capability API error %d: %s", status, data))
	default:
		return fmt.Errorf("capability API error %d: %s", status, data)
	}
}
