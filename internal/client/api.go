package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lotmarket/internal/models"
)

// ErrUnauthorized signals the server rejected the credential (401/403).
// Callers treat it as "session dead", unlike transport errors which are
// retryable.
var ErrUnauthorized = errors.New("unauthorized")

// API is the slice of the server the orchestrator talks to.
type API interface {
	Authenticate(ctx context.Context, assertion, startParam string) (*AuthResponse, error)
	Verify(ctx context.Context, sessionToken string, userID int64) (*models.User, error)
	Logout(ctx context.Context, sessionToken string, all bool) error
}

// AuthResponse mirrors the server's identity-authentication response.
type AuthResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"sessionToken"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL   string
	http      *http.Client
	installID string
}

// NewClient creates an API client for the server at baseURL. installID
// identifies this installation and may be empty.
func NewClient(baseURL, installID string) *Client {
	return &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		installID: installID,
	}
}

// Authenticate exchanges a platform identity assertion for a session.
func (c *Client) Authenticate(ctx context.Context, assertion, startParam string) (*AuthResponse, error) {
	body := map[string]string{"assertion": assertion}
	if startParam != "" {
		body["startParam"] = startParam
	}

	resp := &AuthResponse{}
	if err := c.post(ctx, "/api/auth/identity", body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Verify re-validates a recovered session token against the server.
func (c *Client) Verify(ctx context.Context, sessionToken string, userID int64) (*models.User, error) {
	body := map[string]interface{}{"sessionToken": sessionToken}
	if userID != 0 {
		body["userId"] = userID
	}

	var resp struct {
		User *models.User `json:"user"`
	}
	if err := c.post(ctx, "/api/auth/verify", body, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Logout deactivates the session server-side.
func (c *Client) Logout(ctx context.Context, sessionToken string, all bool) error {
	body := map[string]interface{}{"sessionToken": sessionToken}
	if all {
		body["logoutAll"] = true
	}
	return c.post(ctx, "/api/auth/logout", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.installID != "" {
		req.Header.Set("X-Install-ID", c.installID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
