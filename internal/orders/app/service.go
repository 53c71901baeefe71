package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/queries"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Service bundles use cases for handling orders via the API, the webhook
// reconciler and the sweeper.
type Service struct {
	createOrderHandler     commands.CommandHandler
	transitionOrderHandler commands.TransitionHandler
	cancelOrderHandler     commands.CancelHandler
	getOrderHandler        *queries.GetOrderQueryHandler
	listOrdersHandler      *queries.ListOrdersQueryHandler
	summaryHandler         *queries.SummaryQueryHandler
}

// Dependencies lists what NewService wires together. Catalog and Effects
// are optional; Now defaults to time.Now.
type Dependencies struct {
	Repo    ports.OrderRepository
	Gateway ports.PaymentGateway
	Catalog ports.ProductCatalog
	Effects commands.EffectRunner
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// NewService wires required dependencies.
func NewService(deps Dependencies) *Service {
	channels := commands.NewChannelTable(deps.Gateway)

	create := commands.NewCreateOrderCommandHandler(deps.Repo, deps.Catalog, channels, deps.Effects, deps.Now)
	transition := commands.NewTransitionOrderCommandHandler(deps.Repo, deps.Effects, deps.Now)
	cancel := commands.NewCancelOrderCommandHandler(deps.Repo, deps.Effects, deps.Now)

	return &Service{
		createOrderHandler:     commands.NewObservableCommandHandler(create, deps.Logger, deps.Metrics),
		transitionOrderHandler: commands.NewObservableTransitionHandler(transition, deps.Logger, deps.Metrics),
		cancelOrderHandler:     commands.NewObservableCancelHandler(cancel, deps.Logger, deps.Metrics),
		getOrderHandler:        queries.NewGetOrderQueryHandler(deps.Repo),
		listOrdersHandler:      queries.NewListOrdersQueryHandler(deps.Repo),
		summaryHandler:         queries.NewSummaryQueryHandler(deps.Repo),
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	Items      []commands.LineItemInput `json:"items"`
	TotalCents int64                    `json:"total_cents"`
	Shipping   domain.ShippingInfo      `json:"shipping"`
	Channel    domain.PaymentChannel    `json:"payment_channel"`
}

// CreateOrder creates an order for ownerID. A repeated idempotency key
// returns the original order with Created == false.
func (s *Service) CreateOrder(ctx context.Context, ownerID, idempotencyKey string, input CreateOrderInput) (*commands.CreateOrderResult, error) {
	cmd := commands.CreateOrderCommand{
		OwnerID:        ownerID,
		Items:          input.Items,
		TotalCents:     input.TotalCents,
		Shipping:       input.Shipping,
		Channel:        input.Channel,
		IdempotencyKey: idempotencyKey,
	}
	return s.createOrderHandler.Handle(ctx, cmd)
}

// TransitionOrder moves an order along the status graph.
func (s *Service) TransitionOrder(ctx context.Context, cmd commands.TransitionOrderCommand) (*commands.TransitionResult, error) {
	return s.transitionOrderHandler.Handle(ctx, cmd)
}

// CancelOrder cancels an order unless it was already delivered.
func (s *Service) CancelOrder(ctx context.Context, cmd commands.CancelOrderCommand) (*commands.TransitionResult, error) {
	return s.cancelOrderHandler.Handle(ctx, cmd)
}

// GetOrder retrieves an order by ID. A non-empty ownerID restricts the
// lookup to that owner's orders.
func (s *Service) GetOrder(ctx context.Context, id, ownerID string) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id, OwnerID: ownerID})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.listOrdersHandler.Handle(ctx, queries.ListOrdersQuery{Filter: filter})
}

// Summary aggregates order counts and value per status.
func (s *Service) Summary(ctx context.Context) (*queries.Summary, error) {
	return s.summaryHandler.Handle(ctx)
}
