package vault_test

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/dejobratic/orderflow/internal/payments/vault"
)

// memStore keeps credentials in a map and exposes the raw rows.
type memStore struct {
	mu          sync.Mutex
	credentials map[string]vault.Credential
}

func newMemStore() *memStore {
	return &memStore{credentials: make(map[string]vault.Credential)}
}

func (s *memStore) Active(_ context.Context) (*vault.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.credentials {
		if c.Active {
			out := c
			return &out, nil
		}
	}
	return nil, vault.ErrNoActiveCredential
}

func (s *memStore) Activate(_ context.Context, credential vault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.credentials {
		if c.Active {
			c.Active = false
			s.credentials[id] = c
		}
	}
	credential.Active = true
	s.credentials[credential.ID] = credential
	return nil
}

func (s *memStore) UpdateTokens(_ context.Context, credential vault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.credentials[credential.ID]
	if !ok {
		return vault.ErrNoActiveCredential
	}
	current.AccessToken = credential.AccessToken
	current.RefreshToken = credential.RefreshToken
	current.Scope = credential.Scope
	current.ExpiresAt = credential.ExpiresAt
	current.UpdatedAt = credential.UpdatedAt
	s.credentials[credential.ID] = current
	return nil
}

func (s *memStore) DeleteActive(_ context.Context) (*vault.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.credentials {
		if c.Active {
			delete(s.credentials, id)
			return &c, nil
		}
	}
	return nil, vault.ErrNoActiveCredential
}

func (s *memStore) count() (total, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.credentials {
		total++
		if c.Active {
			active++
		}
	}
	return total, active
}

func (s *memStore) raw(id string) (vault.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	return c, ok
}

// put stores a row as-is, bypassing activation.
func (s *memStore) put(credential vault.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential.ID] = credential
}

// isSealed reports whether value looks like nonce:tag:ciphertext hex.
func isSealed(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}
