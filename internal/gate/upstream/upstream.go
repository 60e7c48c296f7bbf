package upstream

import (
	"context"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
)

// Provisioner is the surface the key lifecycle needs from the managed-key
// admin API. Client implements it; tests substitute fakes.
type Provisioner interface {
	// FindByID fetches a key by id; ErrKeyNotFound when it no longer exists.
	FindByID(ctx context.Context, id string) (domain.UpstreamKey, error)

	// FindByName fetches a key by its exact provisioned name.
	FindByName(ctx context.Context, name string) (domain.UpstreamKey, error)

	// Create provisions a new key; the returned Secret is disclosed only here.
	Create(ctx context.Context, name string) (domain.UpstreamKey, error)

	// Delete removes a key permanently.
	Delete(ctx context.Context, id string) error
}
