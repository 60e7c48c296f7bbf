package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/internal/gate/store"
	"github.com/aussiebroadwan/llmgate/internal/gate/upstream"
	"github.com/aussiebroadwan/llmgate/pkg/cryptox"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

var (
	// ErrKeyExists means the user already holds an active key.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound means there is no active key to act on.
	ErrKeyNotFound = errors.New("no active key")

	// ErrNotProvisioned means the user has never been issued a key (or only
	// holds a revoked one).
	ErrNotProvisioned = errors.New("no key provisioned")
)

// KeyService owns the lifecycle of the proxy-token-to-upstream-key mapping:
// issuing, revoking, and healing drift between the registry and the upstream
// platform.
type KeyService struct {
	Store       store.Store
	Provisioner upstream.Provisioner

	// KeyNameTemplate names upstream keys deterministically per user; it
	// must contain the "{email}" placeholder.
	KeyNameTemplate string
}

// KeyStatus is the dashboard view of a user's key: whether one exists and
// what the upstream platform reports about its usage.
type KeyStatus struct {
	Exists    bool      `json:"exists"`
	CreatedAt time.Time `json:"created_at,omitzero"`

	RequestCount int64   `json:"request_count,omitempty"`
	SpendUSD     float64 `json:"spend_usd,omitempty"`
	LimitUSD     float64 `json:"limit_usd,omitempty"`
}

func (s *KeyService) keyName(email string) string {
	return strings.ReplaceAll(s.KeyNameTemplate, "{email}", email)
}

// Ensure returns the user's active mapping together with its live upstream
// key, healing drift on the way: if the upstream key has been deleted or
// disabled behind our back, a replacement is provisioned and persisted into
// the same row. The user's proxy token never changes here; a backend-only
// failure must not invalidate a credential the user already holds.
func (s *KeyService) Ensure(ctx context.Context, email string) (domain.KeyMapping, domain.UpstreamKey, error) {
	l := slogx.FromContext(ctx)

	rec, err := s.Store.Keys().GetActiveByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.KeyMapping{}, domain.UpstreamKey{}, ErrNotProvisioned
	}
	if err != nil {
		return domain.KeyMapping{}, domain.UpstreamKey{}, err
	}

	up, err := s.Provisioner.FindByID(ctx, rec.UpstreamKeyID)
	switch {
	case err == nil && !up.Disabled:
		return rec, up, nil
	case err != nil && !errors.Is(err, upstream.ErrKeyNotFound):
		// Transient upstream failure is not drift; do not re-provision.
		return domain.KeyMapping{}, domain.UpstreamKey{}, fmt.Errorf("fetch upstream key: %w", err)
	}

	l.Warn("upstream key drift detected, provisioning replacement",
		"email", email, "upstream_key_id", rec.UpstreamKeyID)

	fresh, err := s.Provisioner.Create(ctx, s.keyName(email))
	if err != nil {
		return domain.KeyMapping{}, domain.UpstreamKey{}, fmt.Errorf("provision replacement key: %w", err)
	}

	if err := s.Store.Keys().UpdateUpstreamRef(ctx, email, fresh.ID, fresh.Secret); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row was revoked while we were provisioning.
			return domain.KeyMapping{}, domain.UpstreamKey{}, ErrNotProvisioned
		}
		return domain.KeyMapping{}, domain.UpstreamKey{}, err
	}

	rec.UpstreamKeyID = fresh.ID
	rec.UpstreamKeySecret = fresh.Secret
	return rec, fresh, nil
}

// Create issues a proxy token for email. First-time users get a freshly
// provisioned upstream key; users with a revoked mapping get it reactivated,
// re-provisioning the upstream key only if it died in the meantime. In every
// path the proxy token is newly minted (a revoked token can never become
// valid again) and the plaintext is returned exactly once.
func (s *KeyService) Create(ctx context.Context, email string) (string, error) {
	l := slogx.FromContext(ctx)

	if _, err := s.Store.Keys().GetActiveByEmail(ctx, email); err == nil {
		return "", ErrKeyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	token, err := cryptox.GenerateProxyToken()
	if err != nil {
		return "", err
	}
	tokenHash := cryptox.FingerprintToken(token)

	revoked, err := s.Store.Keys().GetRevokedByEmail(ctx, email)
	switch {
	case err == nil:
		return s.reactivate(ctx, email, revoked, token, tokenHash)
	case errors.Is(err, store.ErrNotFound):
		// fall through to first-time provisioning
	default:
		return "", err
	}

	fresh, err := s.Provisioner.Create(ctx, s.keyName(email))
	if err != nil {
		return "", fmt.Errorf("provision upstream key: %w", err)
	}

	err = s.Store.Keys().Insert(ctx, domain.KeyMapping{
		Email:             email,
		TokenHash:         tokenHash,
		UpstreamKeyID:     fresh.ID,
		UpstreamKeySecret: fresh.Secret,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a create race. The key we provisioned is now orphaned
			// upstream; keys are cheap and low-limit, so we log and move on.
			l.Warn("lost create race, orphaned upstream key",
				"email", email, "upstream_key_id", fresh.ID)
			return "", ErrKeyExists
		}
		l.Error("registry insert failed after provisioning, orphaned upstream key",
			"email", email, "upstream_key_id", fresh.ID, "error", err)
		return "", err
	}

	l.Info("key created", "email", email, "upstream_key_id", fresh.ID)
	return token, nil
}

func (s *KeyService) reactivate(
	ctx context.Context,
	email string,
	revoked domain.KeyMapping,
	token, tokenHash string,
) (string, error) {
	l := slogx.FromContext(ctx)

	// The dormant mapping usually still points at a live upstream key;
	// only replace it when the platform says it is gone or disabled.
	var newID, newSecret string
	up, err := s.Provisioner.FindByID(ctx, revoked.UpstreamKeyID)
	switch {
	case errors.Is(err, upstream.ErrKeyNotFound), err == nil && up.Disabled:
		fresh, err := s.Provisioner.Create(ctx, s.keyName(email))
		if err != nil {
			return "", fmt.Errorf("provision upstream key: %w", err)
		}
		newID, newSecret = fresh.ID, fresh.Secret
	case err != nil:
		return "", fmt.Errorf("fetch upstream key: %w", err)
	}

	if err := s.Store.Keys().Reactivate(ctx, email, tokenHash, newID, newSecret); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Someone reactivated concurrently; their token won.
			return "", ErrKeyExists
		}
		return "", err
	}

	l.Info("key reactivated", "email", email, "replaced_upstream_key", newID != "")
	return token, nil
}

// Revoke deactivates the user's proxy token immediately. The upstream key is
// deliberately left alive so usage history persists and a later Create can
// reactivate it without re-provisioning.
func (s *KeyService) Revoke(ctx context.Context, email string) error {
	err := s.Store.Keys().Revoke(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("key revoked", "email", email)
	return nil
}

// Status reports key existence and upstream usage for the dashboard,
// self-healing drift via Ensure on the way.
func (s *KeyService) Status(ctx context.Context, email string) (KeyStatus, error) {
	rec, up, err := s.Ensure(ctx, email)
	if errors.Is(err, ErrNotProvisioned) {
		return KeyStatus{Exists: false}, nil
	}
	if err != nil {
		return KeyStatus{}, err
	}

	return KeyStatus{
		Exists:       true,
		CreatedAt:    rec.CreatedAt,
		RequestCount: up.RequestCount,
		SpendUSD:     up.SpendUSD,
		LimitUSD:     up.LimitUSD,
	}, nil
}
