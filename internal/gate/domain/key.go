package domain

import "time"

// KeyMapping is the registry row tying a user to their upstream managed key.
// There is exactly one row per email; the revoked flag distinguishes live
// mappings from dormant ones. The plaintext proxy token is never stored,
// only its fingerprint.
type KeyMapping struct {
	Email             string
	TokenHash         string // fingerprint of the opaque proxy token
	UpstreamKeyID     string
	UpstreamKeySecret string // the real credential; never leaves the server
	Revoked           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UpstreamKey is the externally owned managed key as reported by the
// provisioning API. Secret is populated only in the create response; reads
// return an empty secret.
type UpstreamKey struct {
	ID       string
	Name     string
	Secret   string
	Disabled bool

	RequestCount int64
	SpendUSD     float64
	LimitUSD     float64
}
