package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/payments"
)

// PaymentGateway is the slice of the payment provider the order lifecycle needs.
type PaymentGateway interface {
	CreatePayableReference(ctx context.Context, order domain.Order) (payments.PayableReference, error)
	LookupPayments(ctx context.Context, orderID string) ([]payments.Payment, error)
}

// Notification is one message for the dispatcher.
type Notification struct {
	Template  string         `json:"template"`
	Recipient string         `json:"recipient"`
	OrderID   string         `json:"order_id"`
	Context   map[string]any `json:"context,omitempty"`
}

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Account is the identity of an order owner or administrator.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AccountDirectory resolves account ids to contact details.
type AccountDirectory interface {
	Lookup(ctx context.Context, accountID string) (*Account, error)
}

// Product is the catalog view used to snapshot line items.
type Product struct {
	ID             string
	Title          string
	UnitPriceCents int64
	ImageRef       string
}

// ProductCatalog is consulted only while creating an order.
type ProductCatalog interface {
	Lookup(ctx context.Context, productID string) (*Product, error)
}

var (
	// ErrAccountNotFound is returned by directories for unknown accounts.
	ErrAccountNotFound = errors.New("account not found")
	// ErrProductNotFound is returned by catalogs for unknown products.
	ErrProductNotFound = errors.New("product not found")
)
