package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

// ErrUnauthenticated covers every verification failure. The core does not
// distinguish an unreachable auth service from an invalid token; both reject
// the calling operation.
var ErrUnauthenticated = errors.New("authentication failed")

// Identity is the verified purchaser returned by the auth service.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Client exchanges a bearer token for a verified identity via a single
// unary call to the auth service. No retries.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

func (c *Client) Verify(ctx context.Context, token string) (*Identity, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/verify", bytes.NewReader(body))
	if err != nil {
		return nil, ErrUnauthenticated
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[Auth] verification call failed: %v", err)
		return nil, ErrUnauthenticated
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnauthenticated
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("[Auth] invalid verification response: %v", err)
		return nil, ErrUnauthenticated
	}
	if out.Error != "" || out.UserID == "" {
		return nil, ErrUnauthenticated
	}

	return &Identity{UserID: out.UserID, Email: out.Email, Name: out.Name}, nil
}
