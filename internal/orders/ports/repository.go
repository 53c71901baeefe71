package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// DecideFunc evaluates the locked, current state of an order and returns
// the decision to persist.
type DecideFunc func(order domain.Order) (domain.Decision, error)

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	// Create inserts the order together with its first history entry. When
	// the order carries an idempotency key that is already recorded, nothing
	// is written and the stored order is returned with created == false.
	Create(ctx context.Context, order domain.Order) (stored *domain.Order, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// Transition runs decide against the order while holding a per-order
	// write guard and persists status, history and terminal metadata in one
	// unit. No-op decisions are not written.
	Transition(ctx context.Context, id string, decide DecideFunc) (*domain.Order, domain.Decision, error)
	FlagForReview(ctx context.Context, id string, reason string) error
	RecordNotificationFailure(ctx context.Context, id string, failure domain.NotificationFailure) error
	// ListAbandoned returns orders still in an initial status created before
	// cutoff and without cancellation metadata, oldest first.
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	Summarize(ctx context.Context) ([]StatusSummary, error)
}

// ListFilter narrows list queries by status, owner and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	OwnerID  string
	Page     int
	PageSize int
}

// StatusSummary aggregates orders sharing a status.
type StatusSummary struct {
	Status     domain.OrderStatus `json:"status"`
	Count      int64              `json:"count"`
	TotalCents int64              `json:"total_cents"`
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the actor may not act on the order.
	ErrForbidden = errors.New("forbidden")
	// ErrIdempotencyKeyInUse is returned when a creation key already belongs
	// to another owner's order.
	ErrIdempotencyKeyInUse = errors.New("idempotency key is already in use")
)

// Normalize applies the default pagination used by every adapter.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return f
}
