package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Repository provides an in-memory store useful for local development and tests.
// A single mutex serialises writers, which gives every order the same
// single-writer guarantee the postgres adapter gets from row locks.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	byKey  map[string]string
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders: make(map[string]domain.Order),
		byKey:  make(map[string]string),
	}
}

// Create stores a new order, or returns the order already holding its idempotency key.
func (r *Repository) Create(_ context.Context, order domain.Order) (*domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyKey != "" {
		if id, ok := r.byKey[order.IdempotencyKey]; ok {
			existing := clone(r.orders[id])
			return &existing, false, nil
		}
	}
	if _, exists := r.orders[order.ID]; exists {
		return nil, false, fmt.Errorf("insert order: duplicate id %s", order.ID)
	}

	stored := clone(order)
	r.orders[order.ID] = stored
	if order.IdempotencyKey != "" {
		r.byKey[order.IdempotencyKey] = order.ID
	}

	out := clone(stored)
	return &out, true, nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := clone(order)
	return &out, nil
}

func (r *Repository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := clone(r.orders[id])
	return &out, nil
}

func (r *Repository) GetByPaymentReference(_ context.Context, reference string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, order := range r.orders {
		if order.PaymentReference != "" && order.PaymentReference == reference {
			out := clone(order)
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

// List returns orders respecting the provided filter, newest first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalize()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.OwnerID != "" && order.OwnerID != filter.OwnerID {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := (filter.Page - 1) * filter.PageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := min(start+filter.PageSize, len(result))

	page := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		page = append(page, clone(order))
	}
	return page, nil
}

// Transition applies decide to the current order under the write lock.
func (r *Repository) Transition(_ context.Context, id string, decide ports.DecideFunc) (*domain.Order, domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.Decision{}, ports.ErrNotFound
	}

	working := clone(order)
	decision, err := decide(working)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	if decision.NoOp {
		return &working, decision, nil
	}

	working.Apply(decision)
	r.orders[id] = clone(working)
	return &working, decision, nil
}

func (r *Repository) FlagForReview(_ context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	order.NeedsReview = true
	order.ReviewReason = reason
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order
	return nil
}

func (r *Repository) RecordNotificationFailure(_ context.Context, id string, failure domain.NotificationFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	order.Notifications = append(slices.Clone(order.Notifications), failure)
	r.orders[id] = order
	return nil
}

func (r *Repository) ListAbandoned(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if !order.Status.IsInitial() || order.Cancellation != nil {
			continue
		}
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		result = append(result, clone(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) Summarize(_ context.Context) ([]ports.StatusSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[domain.OrderStatus]*ports.StatusSummary)
	for _, order := range r.orders {
		s, ok := byStatus[order.Status]
		if !ok {
			s = &ports.StatusSummary{Status: order.Status}
			byStatus[order.Status] = s
		}
		s.Count++
		s.TotalCents += order.TotalCents
	}

	summaries := make([]ports.StatusSummary, 0, len(byStatus))
	for _, status := range domain.AllStatuses {
		if s, ok := byStatus[status]; ok {
			summaries = append(summaries, *s)
		}
	}
	return summaries, nil
}

func clone(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.History = slices.Clone(o.History)
	o.Notifications = slices.Clone(o.Notifications)
	if o.Cancellation != nil {
		c := *o.Cancellation
		o.Cancellation = &c
	}
	if o.DeliveredAt != nil {
		d := *o.DeliveredAt
		o.DeliveredAt = &d
	}
	return o
}
