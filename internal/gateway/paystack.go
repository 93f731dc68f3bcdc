package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Paystack settlement status values this service maps onto its own domain.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var ErrInitializationFailed = errors.New("failed to initialize transaction")

// Client talks to the Paystack REST API. Both operations are unary and
// keyed by the order reference; callers own any retry policy.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	http        *http.Client
}

func NewClient(baseURL, secretKey, callbackURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// InitializeRequest carries everything Paystack needs to open a checkout
// session. Amount is the order's decimal grand total; the client converts
// it to the smallest currency unit on the wire.
type InitializeRequest struct {
	Email     string
	Amount    decimal.Decimal
	Reference string
	Metadata  map[string]any
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
	} `json:"data"`
}

// Initialize opens a transaction and returns the checkout redirect URL.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (string, error) {
	body, err := json.Marshal(initializeBody{
		Email:       req.Email,
		Amount:      req.Amount.Mul(decimal.NewFromInt(100)).IntPart(), // kobo
		Reference:   req.Reference,
		CallbackURL: c.callbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build initialize request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("initialize request failed: %w", err)
	}
	defer resp.Body.Close()

	var out initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode initialize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Status || out.Data.AuthorizationURL == "" {
		return "", ErrInitializationFailed
	}
	return out.Data.AuthorizationURL, nil
}

// VerifyResult is the gateway's view of a transaction: its settlement
// status plus the raw payload for the caller to forward.
type VerifyResult struct {
	Status string
	Raw    map[string]any
}

type verifyResponse struct {
	Status bool           `json:"status"`
	Data   map[string]any `json:"data"`
}

// Verify fetches the settlement status for a reference. A response without
// a data object yields a nil result and no error; the caller treats that as
// a neutral failure.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if out.Data == nil {
		return nil, nil
	}

	status, _ := out.Data["status"].(string)
	return &VerifyResult{Status: status, Raw: out.Data}, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}
