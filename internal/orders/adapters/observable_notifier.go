package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/rabbitmq"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableNotifier struct {
	notifier ports.Notifier
	metrics  *rabbitmq.Metrics
}

func NewObservableNotifier(notifier ports.Notifier, metrics *rabbitmq.Metrics) *ObservableNotifier {
	return &ObservableNotifier{
		notifier: notifier,
		metrics:  metrics,
	}
}

func (n *ObservableNotifier) Dispatch(ctx context.Context, notification ports.Notification) error {
	ctx, span := telemetry.StartSpan(ctx, "Notifier.Dispatch")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", notification.OrderID),
		attribute.String("notification.template", notification.Template),
	)

	start := time.Now()
	err := n.notifier.Dispatch(ctx, notification)
	duration := time.Since(start).Seconds()

	n.metrics.RecordPublish(ctx, notification.Template, duration, err == nil)
	telemetry.FinishSpan(span, err)

	return err
}
