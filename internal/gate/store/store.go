package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Keys() Keys

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Keys is the registry of proxy-token-to-upstream-key mappings. All writes
// are single-row conditional statements keyed by email so concurrent callers
// resolve to exactly one winner without in-process locking.
type Keys interface {
	// GetActiveByEmail returns the non-revoked mapping for email.
	GetActiveByEmail(ctx context.Context, email string) (domain.KeyMapping, error)

	// GetActiveByTokenHash resolves a proxy token fingerprint to its
	// non-revoked mapping. This is the hot path for every proxied request
	// carrying a personal key.
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (domain.KeyMapping, error)

	// GetRevokedByEmail returns the revoked mapping for email, if any.
	GetRevokedByEmail(ctx context.Context, email string) (domain.KeyMapping, error)

	// Insert creates the mapping row for a first-time user. Returns
	// ErrAlreadyExists if any row (active or revoked) exists for the email.
	Insert(ctx context.Context, m domain.KeyMapping) error

	// UpdateUpstreamRef repoints an active mapping at a freshly provisioned
	// upstream key, leaving the proxy token untouched. Used for drift
	// healing. Returns ErrNotFound if no active row matched.
	UpdateUpstreamRef(ctx context.Context, email, newID, newSecret string) error

	// Reactivate flips a revoked row back to active with a new token hash
	// and, when newID is non-empty, a replacement upstream key reference.
	// Returns ErrNotFound if no revoked row matched, so a concurrent
	// reactivation loses cleanly.
	Reactivate(ctx context.Context, email, newTokenHash, newID, newSecret string) error

	// Revoke marks the active mapping revoked. Returns ErrNotFound if no
	// active row matched.
	Revoke(ctx context.Context, email string) error
}
