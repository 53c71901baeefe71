package commands

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// channelBehavior is what differs between payment channels at creation time.
type channelBehavior struct {
	// prepare runs before the order is persisted; an error aborts creation.
	prepare func(ctx context.Context, order *domain.Order) error
	// effects fire after the order is committed.
	effects []domain.Effect
}

// ChannelTable selects creation behaviour by payment channel.
type ChannelTable map[domain.PaymentChannel]channelBehavior

// NewChannelTable builds the dispatch table for the supported channels.
func NewChannelTable(gateway ports.PaymentGateway) ChannelTable {
	return ChannelTable{
		domain.ChannelOnlineGateway: {
			prepare: func(ctx context.Context, order *domain.Order) error {
				ref, err := gateway.CreatePayableReference(ctx, *order)
				if err != nil {
					return fmt.Errorf("create payable reference: %w", err)
				}
				order.PaymentReference = ref.ReferenceID
				order.PaymentURL = ref.PaymentURL
				return nil
			},
		},
		domain.ChannelManual: {
			prepare: func(context.Context, *domain.Order) error { return nil },
			effects: []domain.Effect{domain.EffectManualOrderPlaced},
		},
	}
}
