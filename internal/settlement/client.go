// Package settlement is the gateway's client for the external facilitator.
// It performs one bounded settlement call per payment assertion; there are no
// retries and no idempotency key, so resubmission is the caller's job.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/porus-labs/porus/internal/x402"
)

const defaultTimeout = 30 * time.Second

// FacilitatorError carries the status and message of an error payload the
// facilitator actually returned. Transport-level failures are plain errors and
// classify as internal faults instead.
type FacilitatorError struct {
	StatusCode int
	Message    string
}

func (e *FacilitatorError) Error() string {
	return fmt.Sprintf("facilitator responded %d: %s", e.StatusCode, e.Message)
}

// AuthProvider supplies extra request headers, e.g. CDP bearer auth for
// Coinbase-hosted facilitators.
type AuthProvider interface {
	AuthHeaders(ctx context.Context, method, path string) (map[string]string, error)
}

// Config for a facilitator client.
type Config struct {
	// BaseURL of the facilitator, without a trailing slash.
	BaseURL string
	// Timeout bounds each call. Defaults to 30s.
	Timeout time.Duration
	// Auth is optional; nil sends unauthenticated requests.
	Auth AuthProvider
}

// Client calls the facilitator's verify, settle, and supported operations.
type Client struct {
	baseURL string
	auth    AuthProvider
	http    *http.Client
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		auth:    cfg.Auth,
		http:    &http.Client{Timeout: timeout},
	}
}

// Settle executes the payment assertion through the facilitator. The returned
// response may carry Success=false when the facilitator reached a decision
// against the payment; errors mean no decision was obtained (transport fault)
// or the facilitator answered with an error payload (*FacilitatorError).
func (c *Client) Settle(ctx context.Context, payload x402.PaymentPayload, reqs x402.PaymentRequirements) (*x402.SettleResponse, error) {
	var out x402.SettleResponse
	if err := c.post(ctx, "/settle", x402.VerifyRequest{PaymentPayload: payload, PaymentRequirements: reqs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify checks the payment assertion without executing a transfer. It is
// side-effect-free and safe to repeat.
func (c *Client) Verify(ctx context.Context, payload x402.PaymentPayload, reqs x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	var out x402.VerifyResponse
	if err := c.post(ctx, "/verify", x402.VerifyRequest{PaymentPayload: payload, PaymentRequirements: reqs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Supported lists the network families the facilitator holds key material for.
func (c *Client) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("build supported request: %w", err)
	}
	if err := c.applyAuth(ctx, req, "/supported"); err != nil {
		return nil, err
	}
	var out x402.SupportedResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.applyAuth(ctx, req, path); err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) applyAuth(ctx context.Context, req *http.Request, path string) error {
	if c.auth == nil {
		return nil
	}
	headers, err := c.auth.AuthHeaders(ctx, req.Method, path)
	if err != nil {
		return fmt.Errorf("facilitator auth: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// no response at all: classify as an internal fault, not a decision
		return fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read facilitator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &FacilitatorError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "Payment settlement failed"
}
