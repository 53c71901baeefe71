// Package vault keeps the payment provider credential encrypted at rest and
// hands out a current, decrypted access token.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/google/uuid"
)

// ErrNoActiveCredential is returned by stores when nothing is active.
var ErrNoActiveCredential = errors.New("vault: no active credential")

// Credential is a provider credential. Token fields hold ciphertext when
// read from a store and plaintext when returned by the Vault.
type Credential struct {
	ID             string    `json:"id"`
	SellerID       string    `json:"seller_id"`
	ProviderUserID string    `json:"provider_user_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	Scope          string    `json:"scope"`
	ExpiresAt      time.Time `json:"expires_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Expired reports whether the access token is unusable at now, allowing skew.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(c.ExpiresAt)
}

// Store persists credentials. Activate must deactivate any previous active
// record and write the new one as a single atomic operation.
type Store interface {
	Active(ctx context.Context) (*Credential, error)
	Activate(ctx context.Context, credential Credential) error
	UpdateTokens(ctx context.Context, credential Credential) error
	DeleteActive(ctx context.Context) (*Credential, error)
}

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (payments.TokenSet, error)
}

type Vault struct {
	store     Store
	cipher    *Cipher
	refresher Refresher
	logger    *slog.Logger
	skew      time.Duration
	now       func() time.Time

	// refreshMu serialises refreshes inside this process.
	refreshMu sync.Mutex
}

// Option customises a Vault.
type Option func(*Vault)

func WithRefresher(r Refresher) Option {
	return func(v *Vault) { v.refresher = r }
}

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func WithRefreshSkew(skew time.Duration) Option {
	return func(v *Vault) { v.skew = skew }
}

func New(store Store, cipher *Cipher, logger *slog.Logger, opts ...Option) *Vault {
	v := &Vault{
		store:  store,
		cipher: cipher,
		logger: logger,
		skew:   time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GetActiveCredential returns the active credential with decrypted tokens,
// refreshing it first when the access token has expired. It returns
// payments.ErrNotConfigured when there is no usable credential.
func (v *Vault) GetActiveCredential(ctx context.Context) (*Credential, error) {
	stored, err := v.store.Active(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveCredential) {
			return nil, payments.ErrNotConfigured
		}
		return nil, fmt.Errorf("load active credential: %w", err)
	}

	credential, err := v.open(*stored)
	if err != nil {
		v.logger.ErrorContext(ctx, "stored payment credential failed to decrypt",
			"credential_id", stored.ID,
			"error", err,
		)
		return nil, err
	}

	if !credential.Expired(v.now(), v.skew) {
		return credential, nil
	}
	return v.refresh(ctx, credential)
}

func (v *Vault) refresh(ctx context.Context, credential *Credential) (*Credential, error) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if latest, err := v.store.Active(ctx); err == nil && latest.ID == credential.ID {
		if opened, err := v.open(*latest); err == nil && !opened.Expired(v.now(), v.skew) {
			return opened, nil
		}
	}

	if v.refresher == nil || credential.RefreshToken == "" {
		return nil, fmt.Errorf("%w: access token expired", payments.ErrNotConfigured)
	}

	tokens, err := v.refresher.RefreshToken(ctx, credential.RefreshToken)
	if err != nil {
		v.logger.WarnContext(ctx, "payment credential refresh failed",
			"credential_id", credential.ID,
			"error", err,
		)
		if errors.Is(err, payments.ErrProviderRejected) {
			return nil, fmt.Errorf("%w: refresh rejected: %v", payments.ErrNotConfigured, err)
		}
		return nil, fmt.Errorf("refresh credential: %w", err)
	}

	refreshed := *credential
	refreshed.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if tokens.Scope != "" {
		refreshed.Scope = tokens.Scope
	}
	refreshed.ExpiresAt = tokens.ExpiresAt
	refreshed.UpdatedAt = v.now().UTC()

	sealed, err := v.seal(refreshed)
	if err != nil {
		return nil, err
	}
	if err := v.store.UpdateTokens(ctx, sealed); err != nil {
		return nil, fmt.Errorf("save refreshed credential: %w", err)
	}

	v.logger.InfoContext(ctx, "payment credential refreshed",
		"credential_id", refreshed.ID,
		"expires_at", refreshed.ExpiresAt,
	)
	return &refreshed, nil
}

// Store encrypts the token set and makes it the only active credential.
func (v *Vault) Store(ctx context.Context, sellerID string, tokens payments.TokenSet) (*Credential, error) {
	now := v.now().UTC()
	credential := Credential{
		ID:             uuid.NewString(),
		SellerID:       sellerID,
		ProviderUserID: tokens.ProviderUserID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		Scope:          tokens.Scope,
		ExpiresAt:      tokens.ExpiresAt,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sealed, err := v.seal(credential)
	if err != nil {
		return nil, err
	}
	if err := v.store.Activate(ctx, sealed); err != nil {
		return nil, fmt.Errorf("activate credential: %w", err)
	}

	v.logger.InfoContext(ctx, "payment credential stored",
		"credential_id", credential.ID,
		"seller_id", sellerID,
	)
	return &credential, nil
}

// Remove deletes the active credential and returns it decrypted so the
// caller can revoke it upstream.
func (v *Vault) Remove(ctx context.Context) (*Credential, error) {
	stored, err := v.store.DeleteActive(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveCredential) {
			return nil, payments.ErrNotConfigured
		}
		return nil, fmt.Errorf("delete active credential: %w", err)
	}

	credential, err := v.open(*stored)
	if err != nil {
		// The record is gone either way; revocation just cannot happen.
		v.logger.WarnContext(ctx, "deleted payment credential could not be decrypted",
			"credential_id", stored.ID,
			"error", err,
		)
		return stored, err
	}
	return credential, nil
}

// Decrypt opens one stored field.
func (v *Vault) Decrypt(field string) (string, error) {
	return v.cipher.Decrypt(field)
}

func (v *Vault) seal(c Credential) (Credential, error) {
	access, err := v.cipher.Encrypt(c.AccessToken)
	if err != nil {
		return Credential{}, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := v.cipher.Encrypt(c.RefreshToken)
	if err != nil {
		return Credential{}, fmt.Errorf("encrypt refresh token: %w", err)
	}
	c.AccessToken = access
	c.RefreshToken = refresh
	return c, nil
}

func (v *Vault) open(c Credential) (*Credential, error) {
	access, err := v.cipher.Decrypt(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := v.cipher.Decrypt(c.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	c.AccessToken = access
	c.RefreshToken = refresh
	return &c, nil
}
