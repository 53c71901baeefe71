package ports

import "context"

// ProcessedEvent records a provider event that was handled to completion.
type ProcessedEvent struct {
	EventID   string
	EventType string
	OrderID   string
	Outcome   string
}

// EventLog lets webhook processing skip events it has already completed.
// Correctness never depends on it: transitions are idempotent on their own.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, event ProcessedEvent) error
}
