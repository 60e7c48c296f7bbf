package domain

// AuthDecision is the request-scoped outcome of authorization resolution:
// which credential to forward upstream and on whose behalf. It is built
// fresh per request and never persisted.
type AuthDecision struct {
	// Authorization is the full header value to send upstream,
	// e.g. "Bearer sk-...".
	Authorization string

	// CampusMode is true when access was granted on network origin rather
	// than per-user identity.
	CampusMode bool

	// Email is the resolved user identity, or empty for campus-mode and
	// passthrough requests.
	Email string
}
