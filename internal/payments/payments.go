// Package payments holds the provider-neutral payment types and errors shared
// by the gateway, the credential vault and the order lifecycle.
package payments

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured means no active provider credential exists; callers
	// should offer the manual confirmation channel instead.
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrCredentialCorrupted means a stored token failed authentication on
	// decryption and the seller must re-authorize.
	ErrCredentialCorrupted = errors.New("payment credential corrupted")
	// ErrProviderRejected is a business rejection from the provider.
	ErrProviderRejected = errors.New("payment provider rejected the request")
	// ErrProviderUnavailable covers transport failures and provider 5xx.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderTimeout is returned when a provider call exceeds its deadline.
	ErrProviderTimeout = errors.New("payment provider timed out")
)

// PayableReference is what the provider returns for a payment preference.
type PayableReference struct {
	ReferenceID string `json:"reference_id"`
	PaymentURL  string `json:"payment_url"`
}

// PaymentStatus is the provider's view of a payment.
type PaymentStatus string

const (
	PaymentApproved   PaymentStatus = "approved"
	PaymentPending    PaymentStatus = "pending"
	PaymentInProcess  PaymentStatus = "in_process"
	PaymentRejected   PaymentStatus = "rejected"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentChargeback PaymentStatus = "charged_back"
)

// Settled reports whether the payment can confirm an order.
func (s PaymentStatus) Settled() bool {
	return s == PaymentApproved
}

// Payment is a payment record reported by the provider.
type Payment struct {
	ID             string `json:"id"`
	OrderReference string `json:"order_reference"`
	// PayableReference is the provider reference the payment was made
	// against, when the provider reports it.
	PayableReference string        `json:"payable_reference,omitempty"`
	Status           PaymentStatus `json:"status"`
	AmountCents      int64         `json:"amount_cents"`
	Currency         string        `json:"currency,omitempty"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
}

// TokenSet is the result of an authorization-code exchange or a refresh.
type TokenSet struct {
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	Scope          string    `json:"scope,omitempty"`
	ProviderUserID string    `json:"provider_user_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}
