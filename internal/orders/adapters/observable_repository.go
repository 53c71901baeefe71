package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

// observe wraps one repository call in a span and records its duration.
// ErrNotFound is an answer, not a failure, and leaves the span successful.
func (r *ObservableRepository) observe(ctx context.Context, spanName, operation string, attrs []attribute.KeyValue, call func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	err := call(ctx)

	outcome := database.OutcomeOK
	switch {
	case errors.Is(err, ports.ErrNotFound):
		outcome = database.OutcomeNotFound
	case err != nil:
		outcome = database.OutcomeError
	}
	r.metrics.RecordQuery(ctx, operation, outcome, time.Since(start).Seconds())

	if outcome == database.OutcomeError {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return err
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) (*domain.Order, bool, error) {
	var (
		stored  *domain.Order
		created bool
	)
	err := r.observe(ctx, "OrderRepository.Create", "create_order", []attribute.KeyValue{
		attribute.String("order.id", order.ID),
		attribute.String("order.payment_channel", string(order.Channel)),
		attribute.Bool("order.has_idempotency_key", order.IdempotencyKey != ""),
	}, func(ctx context.Context) error {
		var err error
		stored, created, err = r.repo.Create(ctx, order)
		return err
	})
	return stored, created, err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "OrderRepository.GetByID", "get_order_by_id", []attribute.KeyValue{
		attribute.String("order.id", id),
	}, func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByID(ctx, id)
		return err
	})
	return order, err
}

func (r *ObservableRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "OrderRepository.GetByIdempotencyKey", "get_order_by_idempotency_key", nil, func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByIdempotencyKey(ctx, key)
		return err
	})
	return order, err
}

func (r *ObservableRepository) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "OrderRepository.GetByPaymentReference", "get_order_by_payment_reference", []attribute.KeyValue{
		attribute.String("order.payment_reference", reference),
	}, func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByPaymentReference(ctx, reference)
		return err
	})
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("status_filter", string(*filter.Status)))
	}
	if filter.OwnerID != "" {
		attrs = append(attrs, attribute.String("owner_filter", filter.OwnerID))
	}

	var orders []domain.Order
	err := r.observe(ctx, "OrderRepository.List", "list_orders", attrs, func(ctx context.Context) error {
		var err error
		orders, err = r.repo.List(ctx, filter)
		return err
	})
	return orders, err
}

func (r *ObservableRepository) Transition(ctx context.Context, id string, decide ports.DecideFunc) (*domain.Order, domain.Decision, error) {
	var (
		order    *domain.Order
		decision domain.Decision
	)
	err := r.observe(ctx, "OrderRepository.Transition", "transition_order", []attribute.KeyValue{
		attribute.String("order.id", id),
	}, func(ctx context.Context) error {
		var err error
		order, decision, err = r.repo.Transition(ctx, id, decide)
		return err
	})
	return order, decision, err
}

func (r *ObservableRepository) FlagForReview(ctx context.Context, id string, reason string) error {
	return r.observe(ctx, "OrderRepository.FlagForReview", "flag_order_for_review", []attribute.KeyValue{
		attribute.String("order.id", id),
	}, func(ctx context.Context) error {
		return r.repo.FlagForReview(ctx, id, reason)
	})
}

func (r *ObservableRepository) RecordNotificationFailure(ctx context.Context, id string, failure domain.NotificationFailure) error {
	return r.observe(ctx, "OrderRepository.RecordNotificationFailure", "record_notification_failure", []attribute.KeyValue{
		attribute.String("order.id", id),
		attribute.String("notification.template", failure.Template),
	}, func(ctx context.Context) error {
		return r.repo.RecordNotificationFailure(ctx, id, failure)
	})
}

func (r *ObservableRepository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.observe(ctx, "OrderRepository.ListAbandoned", "list_abandoned_orders", []attribute.KeyValue{
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
		attribute.Int("limit", limit),
	}, func(ctx context.Context) error {
		var err error
		orders, err = r.repo.ListAbandoned(ctx, cutoff, limit)
		return err
	})
	return orders, err
}

func (r *ObservableRepository) Summarize(ctx context.Context) ([]ports.StatusSummary, error) {
	var rows []ports.StatusSummary
	err := r.observe(ctx, "OrderRepository.Summarize", "summarize_orders", nil, func(ctx context.Context) error {
		var err error
		rows, err = r.repo.Summarize(ctx)
		return err
	})
	return rows, err
}
