// Package recognizerhttp provides the HTTP client for the intent
// recognition service.
package recognizerhttp

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

	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/port/recognizer"
)

// Client talks to the intent recognition API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a recognizer client from configuration.
func NewClient(cfg config.Recognizer) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recognize extracts a structured intent from one user message.
func (c *Client) Recognize(ctx context.Context, req recognizer.Request) (*intent.Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Transient(domain.TransientTimeout, fmt.Errorf("recognize: %w", err))
		}
		return nil, domain.Transient(domain.TransientConnection, fmt.Errorf("recognize: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient(domain.TransientConnection, fmt.Errorf("read recognize response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.Transient(domain.TransientRateLimit, fmt.Errorf("recognizer API error %d: %s", resp.StatusCode, data))
	case resp.StatusCode >= 500:
		return nil, domain.Transient(domain.TransientModel, fmt.Errorf("recognizer API error %d: %s", resp.StatusCode, data))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("recognizer API error %d: %s", resp.StatusCode, data)
	}

	var in intent.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	return &in, nil
}
