package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

func validShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		RecipientName: "Ana Perez",
		AddressLine1:  "Av San Martin 1234",
		City:          "Mendoza",
		PostalCode:    "5500",
		Province:      "Mendoza",
		Country:       "AR",
	}
}

func validOrder() domain.Order {
	return domain.Order{
		ID:      "order-1",
		OwnerID: "user-1",
		Items: []domain.LineItem{
			{ProductID: "p-1", Title: "Mug", Quantity: 2, UnitPriceCents: 5000},
			{ProductID: "p-2", Title: "Plate", Quantity: 1, UnitPriceCents: 5000},
		},
		TotalCents: 15000,
		Shipping:   validShipping(),
		Channel:    domain.ChannelOnlineGateway,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now(),
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(o *domain.Order)
		wantField string
	}{
		{name: "valid order", mutate: func(o *domain.Order) {}},
		{name: "missing owner", mutate: func(o *domain.Order) { o.OwnerID = " " }, wantField: "owner_id"},
		{name: "no items", mutate: func(o *domain.Order) { o.Items = nil }, wantField: "items"},
		{name: "zero quantity", mutate: func(o *domain.Order) { o.Items[0].Quantity = 0 }, wantField: "items[0].quantity"},
		{name: "missing product", mutate: func(o *domain.Order) { o.Items[1].ProductID = "" }, wantField: "items[1].product_id"},
		{name: "negative price", mutate: func(o *domain.Order) { o.Items[0].UnitPriceCents = -1 }, wantField: "items[0].unit_price_cents"},
		{name: "total mismatch", mutate: func(o *domain.Order) { o.TotalCents = 14999 }, wantField: "total_cents"},
		{name: "unknown channel", mutate: func(o *domain.Order) { o.Channel = "barter" }, wantField: "payment_channel"},
		{name: "incomplete shipping", mutate: func(o *domain.Order) { o.Shipping.City = "" }, wantField: "shipping.city"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(&order)

			err := order.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status domain.OrderStatus
		want   bool
	}{
		{domain.StatusPending, false},
		{domain.StatusAwaitingManualConfirmation, false},
		{domain.StatusPaid, false},
		{domain.StatusShipped, false},
		{domain.StatusDelivered, true},
		{domain.StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitialStatus(t *testing.T) {
	if got := domain.InitialStatus(domain.ChannelOnlineGateway); got != domain.StatusPending {
		t.Errorf("online channel: expected pending, got %s", got)
	}
	if got := domain.InitialStatus(domain.ChannelManual); got != domain.StatusAwaitingManualConfirmation {
		t.Errorf("manual channel: expected awaiting-manual-confirmation, got %s", got)
	}
}
