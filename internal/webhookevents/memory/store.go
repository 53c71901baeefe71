package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Store remembers processed webhook events for the lifetime of the process.
type Store struct {
	mu    sync.RWMutex
	items map[string]ports.ProcessedEvent
}

// NewStore creates a new in-memory event log.
func NewStore() *Store {
	return &Store{items: make(map[string]ports.ProcessedEvent)}
}

// Seen reports whether the event was already processed.
func (s *Store) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[eventID]
	return ok, nil
}

// MarkProcessed records the event. The first record for an id wins.
func (s *Store) MarkProcessed(_ context.Context, event ports.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[event.EventID]; !ok {
		s.items[event.EventID] = event
	}
	return nil
}

// Get returns the stored record for an event id.
func (s *Store) Get(_ context.Context, eventID string) (*ports.ProcessedEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.items[eventID]
	if !ok {
		return nil, false
	}
	return &event, true
}
