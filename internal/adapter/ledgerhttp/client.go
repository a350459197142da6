// Package ledgerhttp provides the HTTP client for the credit ledger
// service.
package ledgerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/adapter/otel"
	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/port/ledger"
	"github.com/zhuermu/zmead-sub004/internal/resilience"
)

// Client talks to the credit ledger API. Failures are classified so
// callers can tell a refusal from an outage: insufficient balance
// surfaces as credit.InsufficientError, reachability problems as
// transient domain errors, and an open breaker as ErrLedgerUnavailable.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a ledger client from configuration.
func NewClient(cfg config.Ledger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// BreakerState returns "closed" when no breaker is attached.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "closed"
	}
	return c.breaker.State()
}

// Balance returns the user's current credit balance.
func (c *Client) Balance(ctx context.Context, userID string) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/balances/"+url.PathEscape(userID), nil)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}

	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("unmarshal balance: %w", err)
	}
	return result.Balance, nil
}

// Check verifies the balance covers amount without reserving anything.
func (c *Client) Check(ctx context.Context, userID string, amount int64) error {
	body, err := json.Marshal(map[string]any{"user_id": userID, "amount": amount})
	if err != nil {
		return fmt.Errorf("marshal check: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v1/credits/check", body); err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	return nil
}

// Deduct applies an idempotent deduction keyed by OperationID.
func (c *Client) Deduct(ctx context.Context, req ledger.DeductRequest) error {
	ctx, span := otel.StartDeductSpan(ctx, req.OperationID, req.Tool)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal deduct: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v1/credits/deduct", body); err != nil {
		return fmt.Errorf("ledger deduct: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
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

		result = data
		return nil
	}

	if c.breaker != nil {
		err := c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", credit.ErrLedgerUnavailable, err)
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyTransportError maps network failures onto transient categories.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Transient(domain.TransientTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(domain.TransientTimeout, err)
	}
	return domain.Transient(domain.TransientConnection, err)
}

// classifyStatus maps HTTP error statuses onto domain errors.
// 402 carries the required/available amounts in the body.
func classifyStatus(status int, data []byte) error {
	switch {
	case status == http.StatusPaymentRequired:
		var payload struct {
			Required  int64 `json:"required"`
			Available int64 `json:"available"`
		}
		_ = json.Unmarshal(data, &payload)
		return &credit.InsufficientError{Required: payload.Required, Available: payload.Available}
	case status == http.StatusTooManyRequests:
		return domain.Transient(domain.TransientRateLimit, fmt.Errorf("ledger API error %d: %s", status, data))
	case status >= 500:
		return domain.Transient(domain.TransientUpstream, fmt.Errorf("ledger API error %d: %s", status, data))
	default:
		return fmt.Errorf("ledger API error %d: %s", status, data)
	}
}
