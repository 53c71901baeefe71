package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		o.metrics.RecordOrderCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCreated(ctx, string(cmd.Channel), outcome)
	}()

	o.logger.InfoContext(ctx, "creating order",
		"owner_id", cmd.OwnerID,
		"payment_channel", string(cmd.Channel),
		"total_cents", cmd.TotalCents,
		"has_idempotency_key", cmd.IdempotencyKey != "",
	)

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		level := slog.LevelError
		if errors.Is(err, domain.ErrValidation) {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "failed to create order",
			"error", err,
			"owner_id", cmd.OwnerID,
			"payment_channel", string(cmd.Channel),
		)
		return nil, err
	}

	order := result.Order
	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.String("order.payment_channel", string(order.Channel)),
		attribute.Int64("order.total_cents", order.TotalCents),
		attribute.Bool("order.created", result.Created),
	)

	if result.Created {
		outcome = "created"
		o.logger.InfoContext(ctx, "order created successfully",
			"order_id", order.ID,
			"owner_id", order.OwnerID,
			"status", string(order.Status),
		)
	} else {
		outcome = "replayed"
		o.logger.InfoContext(ctx, "idempotency key matched an existing order",
			"order_id", order.ID,
			"owner_id", order.OwnerID,
		)
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}

type ObservableTransitionHandler struct {
	handler TransitionHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableTransitionHandler(handler TransitionHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableTransitionHandler {
	return &ObservableTransitionHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableTransitionHandler) Handle(ctx context.Context, cmd TransitionOrderCommand) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "TransitionOrderCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", string(cmd.Target)),
		attribute.String("actor", cmd.Actor),
	)

	result, err := o.handler.Handle(ctx, cmd)
	return observeTransition(ctx, o.logger, o.metrics, span, string(cmd.Target), cmd.OrderID, cmd.Actor, result, err)
}

type ObservableCancelHandler struct {
	handler CancelHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCancelHandler(handler CancelHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCancelHandler {
	return &ObservableCancelHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableCancelHandler) Handle(ctx context.Context, cmd CancelOrderCommand) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CancelOrderCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("actor", cmd.Actor),
		attribute.Bool("cancel.conditional", cmd.AbandonedBefore != nil),
	)

	result, err := o.handler.Handle(ctx, cmd)
	return observeTransition(ctx, o.logger, o.metrics, span, string(domain.StatusCancelled), cmd.OrderID, cmd.Actor, result, err)
}

func observeTransition(
	ctx context.Context,
	logger *slog.Logger,
	m *metrics.Metrics,
	span trace.Span,
	target, orderID, actor string,
	result *TransitionResult,
	err error,
) (*TransitionResult, error) {
	if err != nil {
		m.RecordTransition(ctx, target, "rejected")
		telemetry.RecordSpanError(span, err)
		logger.WarnContext(ctx, "order transition rejected",
			"order_id", orderID,
			"target_status", target,
			"actor", actor,
			"error", err,
		)
		return nil, err
	}

	if !result.Applied {
		m.RecordTransition(ctx, target, "noop")
		logger.DebugContext(ctx, "order transition was a no-op",
			"order_id", orderID,
			"status", string(result.Order.Status),
		)
	} else {
		m.RecordTransition(ctx, target, "applied")
		logger.InfoContext(ctx, "order transitioned",
			"order_id", orderID,
			"from_status", string(result.Decision.From),
			"to_status", string(result.Decision.To),
			"actor", actor,
		)
	}

	telemetry.AddSpanAttributes(span, attribute.Bool("transition.applied", result.Applied))
	telemetry.SetSpanSuccess(span)
	return result, nil
}
