package rabbitmq

import (
	"context"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// NoopDispatcher logs notifications without sending them. Used when no
// broker is configured.
type NoopDispatcher struct {
	logger *slog.Logger
}

func NewNoopDispatcher(logger *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{logger: logger}
}

func (n *NoopDispatcher) Dispatch(ctx context.Context, notification ports.Notification) error {
	n.logger.DebugContext(ctx, "notification::"+notification.Template,
		"order_id", notification.OrderID,
		"recipient", notification.Recipient,
	)
	return nil
}
