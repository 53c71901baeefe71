package vault_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens payments.TokenSet
	err    error
}

func (r *stubRefresher) RefreshToken(_ context.Context, refreshToken string) (payments.TokenSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.tokens, r.err
}

func newVault(t *testing.T, now time.Time, opts ...vault.Option) (*vault.Vault, *memStore) {
	t.Helper()
	c, err := vault.NewCipher("test-secret")
	require.NoError(t, err)
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, vault.WithClock(func() time.Time { return now }))
	return vault.New(store, c, logger, opts...), store
}

func TestVaultStore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v, store := newVault(t, now)
	ctx := context.Background()

	first, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	second, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	total, active := store.count()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)

	raw, ok := store.raw(second.ID)
	require.True(t, ok)
	assert.True(t, isSealed(raw.AccessToken), "tokens must be encrypted at rest")
	assert.NotEqual(t, "access-2", raw.AccessToken)

	previous, ok := store.raw(first.ID)
	require.True(t, ok)
	assert.False(t, previous.Active)

	current, err := v.GetActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, "access-2", current.AccessToken)
}

func TestVaultGetActiveCredential(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		v, _ := newVault(t, now)

		_, err := v.GetActiveCredential(ctx)
		assert.ErrorIs(t, err, payments.ErrNotConfigured)
	})

	t.Run("legacy plaintext record", func(t *testing.T) {
		v, store := newVault(t, now)
		store.put(vault.Credential{ID: "legacy", AccessToken: "plain-access", RefreshToken: "plain-refresh", ExpiresAt: now.Add(time.Hour), Active: true})

		c, err := v.GetActiveCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "plain-access", c.AccessToken)
	})

	t.Run("corrupted record is a hard error", func(t *testing.T) {
		v, store := newVault(t, now)
		stored, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: now.Add(time.Hour)})
		require.NoError(t, err)

		raw := mustRaw(t, store, stored.ID)
		raw.AccessToken = flipHex(raw.AccessToken)
		store.put(raw)

		_, err = v.GetActiveCredential(ctx)
		assert.ErrorIs(t, err, payments.ErrCredentialCorrupted)
	})

	t.Run("expired token is refreshed and re-stored", func(t *testing.T) {
		refresher := &stubRefresher{tokens: payments.TokenSet{AccessToken: "access-new", RefreshToken: "refresh-new", ExpiresAt: now.Add(6 * time.Hour)}}
		v, store := newVault(t, now, vault.WithRefresher(refresher))
		stored, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "access-old", RefreshToken: "refresh-old", ExpiresAt: now.Add(-time.Minute)})
		require.NoError(t, err)

		c, err := v.GetActiveCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-new", c.AccessToken)
		assert.Equal(t, stored.ID, c.ID)
		assert.Equal(t, 1, refresher.calls)

		_, active := store.count()
		assert.Equal(t, 1, active)

		again, err := v.GetActiveCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-new", again.AccessToken)
		assert.Equal(t, 1, refresher.calls, "a fresh token must not be refreshed again")
	})

	t.Run("rejected refresh requires re-authorization", func(t *testing.T) {
		refresher := &stubRefresher{err: payments.ErrProviderRejected}
		v, _ := newVault(t, now, vault.WithRefresher(refresher))
		_, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)})
		require.NoError(t, err)

		_, err = v.GetActiveCredential(ctx)
		assert.ErrorIs(t, err, payments.ErrNotConfigured)
	})

	t.Run("unavailable refresh surfaces the provider error", func(t *testing.T) {
		refresher := &stubRefresher{err: payments.ErrProviderUnavailable}
		v, _ := newVault(t, now, vault.WithRefresher(refresher))
		_, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)})
		require.NoError(t, err)

		_, err = v.GetActiveCredential(ctx)
		assert.ErrorIs(t, err, payments.ErrProviderUnavailable)
		assert.False(t, errors.Is(err, payments.ErrNotConfigured))
	})
}

func TestVaultRemove(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v, store := newVault(t, now)
	ctx := context.Background()

	_, err := v.Store(ctx, "seller-1", payments.TokenSet{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	removed, err := v.Remove(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access", removed.AccessToken)

	total, _ := store.count()
	assert.Zero(t, total)

	_, err = v.Remove(ctx)
	assert.ErrorIs(t, err, payments.ErrNotConfigured)
}

func mustRaw(t *testing.T, store *memStore, id string) vault.Credential {
	t.Helper()
	c, ok := store.raw(id)
	require.True(t, ok)
	return c
}
