package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/internal/gate/upstream"
	"github.com/aussiebroadwan/llmgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

// fakeProvisioner is an in-memory stand-in for the upstream admin API.
type fakeProvisioner struct {
	mu      sync.Mutex
	keys    map[string]domain.UpstreamKey
	nextID  int
	created int

	findErr   error
	createErr error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{keys: map[string]domain.UpstreamKey{}}
}

func (f *fakeProvisioner) Create(ctx context.Context, name string) (domain.UpstreamKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return domain.UpstreamKey{}, f.createErr
	}

	f.nextID++
	f.created++
	key := domain.UpstreamKey{
		ID:     fmt.Sprintf("uk-%d", f.nextID),
		Name:   name,
		Secret: fmt.Sprintf("sk-upstream-%d", f.nextID),
	}
	f.keys[key.ID] = key
	return key, nil
}

func (f *fakeProvisioner) FindByID(ctx context.Context, id string) (domain.UpstreamKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return domain.UpstreamKey{}, f.findErr
	}

	key, ok := f.keys[id]
	if !ok {
		return domain.UpstreamKey{}, upstream.ErrKeyNotFound
	}
	// The platform never returns the secret on lookup.
	key.Secret = ""
	return key, nil
}

func (f *fakeProvisioner) FindByName(ctx context.Context, name string) (domain.UpstreamKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range f.keys {
		if key.Name == name {
			key.Secret = ""
			return key, nil
		}
	}
	return domain.UpstreamKey{}, upstream.ErrKeyNotFound
}

func (f *fakeProvisioner) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.keys[id]; !ok {
		return upstream.ErrKeyNotFound
	}
	delete(f.keys, id)
	return nil
}

func (f *fakeProvisioner) disable(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.keys[id]
	key.Disabled = true
	f.keys[id] = key
}

func (f *fakeProvisioner) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, id)
}

func newKeyService(t *testing.T) (*service.KeyService, *fakeProvisioner) {
	t.Helper()

	prov := newFakeProvisioner()
	return &service.KeyService{
		Store:           newTestStore(t),
		Provisioner:     prov,
		KeyNameTemplate: "gate-{email}",
	}, prov
}

func TestKeyService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("first-time create provisions and returns token once", func(t *testing.T) {
		svc, prov := newKeyService(t)

		token, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(token, cryptox.ProxyTokenPrefix))
		require.Equal(t, 1, prov.created)

		rec, err := svc.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(token))
		require.NoError(t, err)
		require.Equal(t, "alice@uni.edu", rec.Email)
		require.Equal(t, "gate-alice@uni.edu", prov.keys[rec.UpstreamKeyID].Name)
	})

	t.Run("second create conflicts", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		_, err = svc.Create(ctx, "alice@uni.edu")
		require.ErrorIs(t, err, service.ErrKeyExists)
		require.Equal(t, 1, prov.created)
	})

	t.Run("provisioning failure surfaces and writes nothing", func(t *testing.T) {
		svc, prov := newKeyService(t)
		prov.createErr = fmt.Errorf("admin api down")

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.ErrorContains(t, err, "admin api down")

		_, err = svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.Error(t, err)
	})

	t.Run("revoke then create reuses live upstream key with fresh token", func(t *testing.T) {
		svc, prov := newKeyService(t)

		first, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, "alice@uni.edu"))

		second, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NotEqual(t, first, second)
		require.Equal(t, 1, prov.created, "live upstream key must be reused")

		// The old token must stay dead.
		_, err = svc.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(first))
		require.Error(t, err)

		_, err = svc.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(second))
		require.NoError(t, err)
	})

	t.Run("revoke then create re-provisions when upstream key died", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		rec, err := svc.Store.Keys().GetRevokedByEmail(ctx, "alice@uni.edu")
		require.Error(t, err)
		rec, err = svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)

		require.NoError(t, svc.Revoke(ctx, "alice@uni.edu"))
		prov.remove(rec.UpstreamKeyID)

		_, err = svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.Equal(t, 2, prov.created)

		fresh, err := svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NotEqual(t, rec.UpstreamKeyID, fresh.UpstreamKeyID)
	})

	t.Run("concurrent first-time creates elect one winner", func(t *testing.T) {
		svc, _ := newKeyService(t)

		const racers = 8
		var wg sync.WaitGroup
		tokens := make([]string, racers)
		errs := make([]error, racers)

		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tokens[i], errs[i] = svc.Create(ctx, "alice@uni.edu")
			}()
		}
		wg.Wait()

		var wins int
		for i := range racers {
			if errs[i] == nil {
				wins++
				_, err := svc.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(tokens[i]))
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, errs[i], service.ErrKeyExists)
			}
		}
		require.Equal(t, 1, wins)
	})
}

func TestKeyService_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("returns live mapping unchanged", func(t *testing.T) {
		svc, prov := newKeyService(t)

		token, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		rec, up, err := svc.Ensure(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.Equal(t, cryptox.FingerprintToken(token), rec.TokenHash)
		require.Equal(t, rec.UpstreamKeyID, up.ID)
		require.Equal(t, 1, prov.created)
	})

	t.Run("heals deleted upstream key without touching the token", func(t *testing.T) {
		svc, prov := newKeyService(t)

		token, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		before, err := svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)
		prov.remove(before.UpstreamKeyID)

		rec, up, err := svc.Ensure(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NotEqual(t, before.UpstreamKeyID, rec.UpstreamKeyID)
		require.Equal(t, rec.UpstreamKeyID, up.ID)
		require.Equal(t, 2, prov.created)

		// Same proxy token keeps resolving.
		after, err := svc.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(token))
		require.NoError(t, err)
		require.Equal(t, rec.UpstreamKeyID, after.UpstreamKeyID)
	})

	t.Run("heals disabled upstream key", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		before, err := svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)
		prov.disable(before.UpstreamKeyID)

		rec, _, err := svc.Ensure(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NotEqual(t, before.UpstreamKeyID, rec.UpstreamKeyID)
	})

	t.Run("transient upstream failure is not drift", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		prov.findErr = fmt.Errorf("503 from admin api")

		_, _, err = svc.Ensure(ctx, "alice@uni.edu")
		require.ErrorContains(t, err, "503 from admin api")
		require.Equal(t, 1, prov.created, "must not re-provision on a transient error")
	})

	t.Run("unknown user reports not provisioned", func(t *testing.T) {
		svc, _ := newKeyService(t)

		_, _, err := svc.Ensure(ctx, "ghost@uni.edu")
		require.ErrorIs(t, err, service.ErrNotProvisioned)
	})

	t.Run("revoked user reports not provisioned", func(t *testing.T) {
		svc, _ := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, "alice@uni.edu"))

		_, _, err = svc.Ensure(ctx, "alice@uni.edu")
		require.ErrorIs(t, err, service.ErrNotProvisioned)
	})
}

func TestKeyService_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revoking a missing key reports not found", func(t *testing.T) {
		svc, _ := newKeyService(t)
		require.ErrorIs(t, svc.Revoke(ctx, "ghost@uni.edu"), service.ErrKeyNotFound)
	})

	t.Run("revoke leaves the upstream key alive", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		rec, err := svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, "alice@uni.edu"))

		_, ok := prov.keys[rec.UpstreamKeyID]
		require.True(t, ok, "upstream key must survive revocation")
	})
}

func TestKeyService_Status(t *testing.T) {
	ctx := context.Background()

	t.Run("absent key", func(t *testing.T) {
		svc, _ := newKeyService(t)

		status, err := svc.Status(ctx, "ghost@uni.edu")
		require.NoError(t, err)
		require.False(t, status.Exists)
	})

	t.Run("active key reports usage", func(t *testing.T) {
		svc, prov := newKeyService(t)

		_, err := svc.Create(ctx, "alice@uni.edu")
		require.NoError(t, err)

		rec, err := svc.Store.Keys().GetActiveByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)

		prov.mu.Lock()
		key := prov.keys[rec.UpstreamKeyID]
		key.RequestCount = 42
		key.SpendUSD = 1.5
		key.LimitUSD = 10
		prov.keys[rec.UpstreamKeyID] = key
		prov.mu.Unlock()

		status, err := svc.Status(ctx, "alice@uni.edu")
		require.NoError(t, err)
		require.True(t, status.Exists)
		require.EqualValues(t, 42, status.RequestCount)
		require.InDelta(t, 1.5, status.SpendUSD, 1e-9)
		require.InDelta(t, 10, status.LimitUSD, 1e-9)
	})
}
