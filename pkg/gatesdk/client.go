package gatesdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to a gateway's management endpoints. Authenticated calls ride
// on the browser session cookie, so SessionToken must hold a signed session
// value when those are used.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// SessionToken authenticates key management calls. Obtained out of band
	// from the sign-in flow.
	SessionToken string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Livez reports basic process health.
func (c *Client) Livez(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	return out, c.do(ctx, http.MethodGet, "/livez", &out)
}

// Readyz reports dependency health. A degraded gateway yields an error
// carrying the 503 status.
func (c *Client) Readyz(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	return out, c.do(ctx, http.MethodGet, "/readyz", &out)
}

// KeyStatus fetches the signed-in user's key status.
func (c *Client) KeyStatus(ctx context.Context) (KeyStatusResponse, error) {
	var out KeyStatusResponse
	return out, c.do(ctx, http.MethodGet, "/key", &out)
}

// CreateKey issues a proxy token. The plaintext in the response is shown
// exactly once; store it.
func (c *Client) CreateKey(ctx context.Context) (KeyCreatedResponse, error) {
	var out KeyCreatedResponse
	return out, c.do(ctx, http.MethodPost, "/key", &out)
}

// RevokeKey deactivates the signed-in user's proxy token.
func (c *Client) RevokeKey(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/key", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.SessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "gate_session", Value: c.SessionToken})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	// Degraded /readyz responses carry a health body; management errors
	// carry the error envelope. Decode whichever shape matches.
	body := json.NewDecoder(resp.Body)
	var apiErr ErrorResponse
	if err := body.Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
}
