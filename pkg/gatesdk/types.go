// Package gatesdk provides shared wire types for the gateway's own endpoints
// and a small typed client for them. The proxy surface itself is
// API-compatible with the upstream, so any upstream SDK works there; this
// package covers only the gateway's management endpoints.
package gatesdk

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// ErrorResponse is the JSON error envelope used across the gateway's
// management endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// KeyStatusResponse mirrors the dashboard's key view for API consumers.
type KeyStatusResponse struct {
	Exists    bool    `json:"exists"`
	CreatedAt string  `json:"created_at,omitempty"`
	Requests  int64   `json:"request_count,omitempty"`
	SpendUSD  float64 `json:"spend_usd,omitempty"`
	LimitUSD  float64 `json:"limit_usd,omitempty"`
}

// KeyCreatedResponse carries the one-time plaintext proxy token.
type KeyCreatedResponse struct {
	Key string `json:"key"`
}
