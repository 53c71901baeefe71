package domain

import (
	"strconv"
	"strings"
	"time"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending                    OrderStatus = "pending"
	StatusAwaitingManualConfirmation OrderStatus = "awaiting-manual-confirmation"
	StatusPaid                       OrderStatus = "paid"
	StatusShipped                    OrderStatus = "shipped"
	StatusDelivered                  OrderStatus = "delivered"
	StatusCancelled                  OrderStatus = "cancelled"
)

// AllStatuses lists every status in graph order.
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusAwaitingManualConfirmation,
	StatusPaid,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal indicates whether no transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsInitial reports whether s is one of the statuses an order is created in.
func (s OrderStatus) IsInitial() bool {
	return s == StatusPending || s == StatusAwaitingManualConfirmation
}

// PaymentChannel selects how an order gets paid and reconciled.
type PaymentChannel string

const (
	ChannelOnlineGateway PaymentChannel = "online-gateway"
	ChannelManual        PaymentChannel = "manual-confirmation"
)

func (c PaymentChannel) Valid() bool {
	return c == ChannelOnlineGateway || c == ChannelManual
}

// Well-known actors that are not accounts.
const (
	ActorSystem  = "system"
	ActorWebhook = "webhook"
)

// Order represents a purchase managed by the lifecycle engine.
type Order struct {
	ID               string                `json:"id"`
	OwnerID          string                `json:"owner_id"`
	Items            []LineItem            `json:"items"`
	TotalCents       int64                 `json:"total_cents"`
	Shipping         ShippingInfo          `json:"shipping"`
	Status           OrderStatus           `json:"status"`
	Channel          PaymentChannel        `json:"payment_channel"`
	PaymentReference string                `json:"payment_reference,omitempty"`
	PaymentURL       string                `json:"payment_url,omitempty"`
	IdempotencyKey   string                `json:"idempotency_key,omitempty"`
	History          []HistoryEntry        `json:"history"`
	Cancellation     *Cancellation         `json:"cancellation,omitempty"`
	DeliveredAt      *time.Time            `json:"delivered_at,omitempty"`
	NeedsReview      bool                  `json:"needs_review"`
	ReviewReason     string                `json:"review_reason,omitempty"`
	Notifications    []NotificationFailure `json:"notification_failures,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// LineItem is a snapshot of a product taken when the order was created.
type LineItem struct {
	ProductID      string `json:"product_id"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	ImageRef       string `json:"image_ref,omitempty"`
}

// SubtotalCents is quantity times unit price.
func (li LineItem) SubtotalCents() int64 {
	return int64(li.Quantity) * li.UnitPriceCents
}

type ShippingInfo struct {
	RecipientName string `json:"recipient_name"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2,omitempty"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Province      string `json:"province"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
	Comments      string `json:"comments,omitempty"`
}

// Validate requires the fields a carrier needs to deliver.
func (s ShippingInfo) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"shipping.recipient_name", s.RecipientName},
		{"shipping.address_line1", s.AddressLine1},
		{"shipping.city", s.City},
		{"shipping.postal_code", s.PostalCode},
		{"shipping.country", s.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, "is required")
		}
	}
	return nil
}

// HistoryEntry records one accepted status change. From is empty for the
// entry written at creation.
type HistoryEntry struct {
	From      OrderStatus `json:"from,omitempty"`
	To        OrderStatus `json:"to"`
	Actor     string      `json:"actor"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Cancellation is set only on entry into cancelled.
type Cancellation struct {
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// NotificationFailure is the audit trail of a dispatch that did not succeed.
type NotificationFailure struct {
	Template  string    `json:"template"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// CurrentEntry returns the last history entry.
func (o Order) CurrentEntry() (HistoryEntry, bool) {
	if len(o.History) == 0 {
		return HistoryEntry{}, false
	}
	return o.History[len(o.History)-1], true
}

// Validate ensures the order adheres to creation constraints. The total is
// compared against the line items here and nowhere else.
func (o Order) Validate() error {
	if strings.TrimSpace(o.OwnerID) == "" {
		return NewValidationError("owner_id", "is required")
	}
	if len(o.Items) == 0 {
		return NewValidationError("items", "at least one line item is required")
	}
	var sum int64
	for i, item := range o.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return NewValidationError(itemField(i, "product_id"), "is required")
		}
		if item.Quantity < 1 {
			return NewValidationError(itemField(i, "quantity"), "must be at least 1")
		}
		if item.UnitPriceCents < 0 {
			return NewValidationError(itemField(i, "unit_price_cents"), "cannot be negative")
		}
		sum += item.SubtotalCents()
	}
	if o.TotalCents < 0 {
		return NewValidationError("total_cents", "cannot be negative")
	}
	if o.TotalCents != sum {
		return NewValidationError("total_cents", "does not match the sum of line items")
	}
	if !o.Channel.Valid() {
		return NewValidationError("payment_channel", "is not supported")
	}
	return o.Shipping.Validate()
}

// InitialStatus is the status an order enters for the given channel.
func InitialStatus(channel PaymentChannel) OrderStatus {
	if channel == ChannelManual {
		return StatusAwaitingManualConfirmation
	}
	return StatusPending
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}
