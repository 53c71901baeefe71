package postgres

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE event_id = $1)
	`

	var seen bool
	if err := s.pool.QueryRow(ctx, query, eventID).Scan(&seen); err != nil {
		return false, fmt.Errorf("select processed event: %w", err)
	}
	return seen, nil
}

func (s *Store) MarkProcessed(ctx context.Context, event ports.ProcessedEvent) error {
	query := `
		INSERT INTO processed_webhook_events (event_id, event_type, order_id, outcome)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, event.EventID, event.EventType, event.OrderID, event.Outcome)
	if err != nil {
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}
