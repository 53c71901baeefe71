// Package oauth connects and disconnects the seller's payment provider
// account.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/vault"
)

// ErrMissingCode is returned when the provider redirect carries no code.
var ErrMissingCode = errors.New("authorization code missing")

// Provider is the provider's authorization surface.
type Provider interface {
	AuthorizationURL(state string) string
	ExchangeAuthorizationCode(ctx context.Context, code string) (payments.TokenSet, error)
	Revoke(ctx context.Context, credential vault.Credential) error
}

// CredentialStore keeps the single active credential.
type CredentialStore interface {
	Store(ctx context.Context, sellerID string, tokens payments.TokenSet) (*vault.Credential, error)
	Remove(ctx context.Context) (*vault.Credential, error)
}

type Linker struct {
	provider Provider
	store    CredentialStore
	states   *StateSigner
	logger   *slog.Logger
}

func NewLinker(provider Provider, store CredentialStore, states *StateSigner, logger *slog.Logger) *Linker {
	return &Linker{
		provider: provider,
		store:    store,
		states:   states,
		logger:   logger,
	}
}

// Link returns the provider authorization URL for actorID.
func (l *Linker) Link(ctx context.Context, actorID string) (string, error) {
	state, err := l.states.Issue(actorID)
	if err != nil {
		return "", err
	}
	l.logger.InfoContext(ctx, "payment provider link started", "actor_id", actorID)
	return l.provider.AuthorizationURL(state), nil
}

// Callback completes the link: it checks the state, exchanges the code and
// stores the resulting credential as the only active one.
func (l *Linker) Callback(ctx context.Context, code, state string) (*vault.Credential, error) {
	actorID, err := l.states.Verify(state)
	if err != nil {
		l.logger.WarnContext(ctx, "rejected payment provider callback", "error", err)
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}

	tokens, err := l.provider.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		l.logger.ErrorContext(ctx, "authorization code exchange failed", "actor_id", actorID, "error", err)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	credential, err := l.store.Store(ctx, actorID, tokens)
	if err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return credential, nil
}

// Unlink deletes the active credential and revokes it upstream. Revocation
// is best effort: the local record is gone even when it fails.
func (l *Linker) Unlink(ctx context.Context, actorID string) error {
	credential, err := l.store.Remove(ctx)
	if errors.Is(err, payments.ErrCredentialCorrupted) {
		l.logger.WarnContext(ctx, "payment credential removed without revocation",
			"actor_id", actorID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return err
	}

	if err := l.provider.Revoke(ctx, *credential); err != nil {
		l.logger.WarnContext(ctx, "failed to revoke payment credential upstream",
			"actor_id", actorID,
			"credential_id", credential.ID,
			"error", err,
		)
		return nil
	}

	l.logger.InfoContext(ctx, "payment provider unlinked",
		"actor_id", actorID,
		"credential_id", credential.ID,
	)
	return nil
}
