package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/google/uuid"
)

type LineItemInput struct {
	ProductID      string `json:"product_id"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	ImageRef       string `json:"image_ref,omitempty"`
}

type CreateOrderCommand struct {
	OwnerID        string
	Items          []LineItemInput
	TotalCents     int64
	Shipping       domain.ShippingInfo
	Channel        domain.PaymentChannel
	IdempotencyKey string
}

func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return domain.NewValidationError("owner_id", "is required")
	}
	if len(c.Items) == 0 {
		return domain.NewValidationError("items", "at least one line item is required")
	}
	if !c.Channel.Valid() {
		return domain.NewValidationError("payment_channel", "is not supported")
	}
	if len(c.IdempotencyKey) > 255 {
		return domain.NewValidationError("idempotency_key", "must be at most 255 characters")
	}
	return c.Shipping.Validate()
}

// CreateOrderResult tells callers whether the order was created by this call
// or replayed from an earlier request with the same idempotency key.
type CreateOrderResult struct {
	Order   *domain.Order
	Created bool
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error)
}

type CreateOrderCommandHandler struct {
	repo     ports.OrderRepository
	catalog  ports.ProductCatalog
	channels ChannelTable
	effects  EffectRunner
	now      func() time.Time
}

// NewCreateOrderCommandHandler wires the create use case. catalog may be nil,
// in which case the snapshot supplied with the request is used as-is.
func NewCreateOrderCommandHandler(
	repo ports.OrderRepository,
	catalog ports.ProductCatalog,
	channels ChannelTable,
	effects EffectRunner,
	now func() time.Time,
) *CreateOrderCommandHandler {
	if effects == nil {
		effects = NoopEffectRunner{}
	}
	if now == nil {
		now = time.Now
	}
	return &CreateOrderCommandHandler{
		repo:     repo,
		catalog:  catalog,
		channels: channels,
		effects:  effects,
		now:      now,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, err := h.repo.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
		switch {
		case err == nil:
			return replay(existing, cmd.OwnerID)
		case !errors.Is(err, ports.ErrNotFound):
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	items, err := h.snapshotItems(ctx, cmd.Items)
	if err != nil {
		return nil, err
	}

	behavior, ok := h.channels[cmd.Channel]
	if !ok {
		return nil, domain.NewValidationError("payment_channel", "is not supported")
	}

	now := h.now().UTC()
	status := domain.InitialStatus(cmd.Channel)
	order := domain.Order{
		ID:             uuid.NewString(),
		OwnerID:        cmd.OwnerID,
		Items:          items,
		TotalCents:     cmd.TotalCents,
		Shipping:       cmd.Shipping,
		Status:         status,
		Channel:        cmd.Channel,
		IdempotencyKey: cmd.IdempotencyKey,
		History: []domain.HistoryEntry{{
			To:        status,
			Actor:     cmd.OwnerID,
			Reason:    "order created",
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	// Channel preparation happens before the insert so a failed gateway call
	// leaves nothing behind; the caller may resubmit with the same key.
	if err := behavior.prepare(ctx, &order); err != nil {
		return nil, err
	}

	stored, created, err := h.repo.Create(ctx, order)
	if err != nil {
		return nil, err
	}

	if !created {
		return replay(stored, cmd.OwnerID)
	}

	h.effects.Run(ctx, *stored, behavior.effects)
	return &CreateOrderResult{Order: stored, Created: true}, nil
}

// replay returns the order already stored under the caller's key. Keys are
// unique across owners, so a key held by someone else is refused.
func replay(existing *domain.Order, ownerID string) (*CreateOrderResult, error) {
	if existing.OwnerID != ownerID {
		return nil, ports.ErrIdempotencyKeyInUse
	}
	return &CreateOrderResult{Order: existing, Created: false}, nil
}

func (h *CreateOrderCommandHandler) snapshotItems(ctx context.Context, inputs []LineItemInput) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		item := domain.LineItem{
			ProductID:      strings.TrimSpace(in.ProductID),
			Title:          in.Title,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			ImageRef:       in.ImageRef,
		}

		if h.catalog != nil && item.ProductID != "" {
			product, err := h.catalog.Lookup(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, ports.ErrProductNotFound) {
					return nil, domain.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "does not exist")
				}
				return nil, fmt.Errorf("lookup product %s: %w", item.ProductID, err)
			}
			item.Title = product.Title
			item.UnitPriceCents = product.UnitPriceCents
			item.ImageRef = product.ImageRef
		}

		items = append(items, item)
	}
	return items, nil
}
