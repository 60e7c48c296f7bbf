// Package upstream talks to the inference platform's key administration API.
// The gateway provisions one managed key per user there; the platform owns
// the keys' lifecycle, usage counters and spend limits.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// ErrKeyNotFound reports that the upstream has no key with the given id or
// name. Callers treat this as drift, not as a failure.
var ErrKeyNotFound = errors.New("upstream: key not found")

// Client is the HTTP client for the managed-key admin API. It authenticates
// with the operator's admin credential, which is never used for inference
// traffic.
type Client struct {
	baseURL  string
	adminKey string

	// Per-key settings applied at creation time.
	limitUSD float64
	reset    string // limit reset period, e.g. "daily"

	httpClient *http.Client
}

// NewClient returns a provisioning client for the admin API at baseURL.
func NewClient(baseURL, adminKey string, limitUSD float64, reset string) *Client {
	return &Client{
		baseURL:  baseURL,
		adminKey: adminKey,
		limitUSD: limitUSD,
		reset:    reset,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type keyPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Secret       string  `json:"secret,omitempty"`
	Disabled     bool    `json:"disabled"`
	RequestCount int64   `json:"request_count"`
	SpendUSD     float64 `json:"spend_usd"`
	LimitUSD     float64 `json:"limit_usd"`
}

type createKeyRequest struct {
	Name     string  `json:"name"`
	LimitUSD float64 `json:"limit_usd"`
	Reset    string  `json:"reset"`
}

func (p keyPayload) toDomain() domain.UpstreamKey {
	return domain.UpstreamKey{
		ID:           p.ID,
		Name:         p.Name,
		Secret:       p.Secret,
		Disabled:     p.Disabled,
		RequestCount: p.RequestCount,
		SpendUSD:     p.SpendUSD,
		LimitUSD:     p.LimitUSD,
	}
}

// FindByID fetches a managed key by id. A deleted key yields ErrKeyNotFound.
func (c *Client) FindByID(ctx context.Context, id string) (domain.UpstreamKey, error) {
	var payload keyPayload
	err := c.do(ctx, http.MethodGet, "/v1/admin/keys/"+url.PathEscape(id), nil, &payload)
	if err != nil {
		return domain.UpstreamKey{}, err
	}
	return payload.toDomain(), nil
}

// FindByName fetches a managed key by its exact name.
func (c *Client) FindByName(ctx context.Context, name string) (domain.UpstreamKey, error) {
	var payload struct {
		Keys []keyPayload `json:"keys"`
	}
	path := "/v1/admin/keys?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return domain.UpstreamKey{}, err
	}
	for _, k := range payload.Keys {
		if k.Name == name {
			return k.toDomain(), nil
		}
	}
	return domain.UpstreamKey{}, ErrKeyNotFound
}

// Create provisions a new managed key under the given name with the
// configured spend limit. The response is the only time the platform
// discloses the key's secret.
func (c *Client) Create(ctx context.Context, name string) (domain.UpstreamKey, error) {
	body, err := json.Marshal(createKeyRequest{
		Name:     name,
		LimitUSD: c.limitUSD,
		Reset:    c.reset,
	})
	if err != nil {
		return domain.UpstreamKey{}, err
	}

	var payload keyPayload
	if err := c.do(ctx, http.MethodPost, "/v1/admin/keys", body, &payload); err != nil {
		return domain.UpstreamKey{}, err
	}
	if payload.ID == "" || payload.Secret == "" {
		return domain.UpstreamKey{}, fmt.Errorf("upstream: create returned incomplete key")
	}
	return payload.toDomain(), nil
}

// Delete removes a managed key. Unused by the revoke flow (revoked mappings
// keep their upstream key alive) but part of the admin surface.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/admin/keys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.adminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrKeyNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The body can carry upstream diagnostics; log it, never return it.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slogx.FromContext(ctx).Error("upstream admin call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(detail),
		)
		return fmt.Errorf("upstream: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode %s %s: %w", method, path, err)
	}
	return nil
}
