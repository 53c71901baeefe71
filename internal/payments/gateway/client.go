package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/vault"
	"github.com/shopspring/decimal"
)

// CredentialSource hands out the current decrypted credential.
type CredentialSource interface {
	GetActiveCredential(ctx context.Context) (*vault.Credential, error)
}

// Client calls the provider's payment endpoints on behalf of the seller.
type Client struct {
	cfg         Config
	transport   *transport
	credentials CredentialSource
}

func NewClient(cfg Config, credentials CredentialSource, httpClient *http.Client, metrics *Metrics, logger *slog.Logger) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	return &Client{
		cfg:         cfg,
		transport:   newTransport(cfg, httpClient, metrics, logger),
		credentials: credentials,
	}
}

type preferenceItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unit_price"`
	CurrencyID  string      `json:"currency_id"`
	PictureURL  string      `json:"picture_url,omitempty"`
	Description string      `json:"description,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem  `json:"items"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePayableReference creates a payment preference for the order. The
// order id is the external reference the provider reports back.
func (c *Client) CreatePayableReference(ctx context.Context, order domain.Order) (payments.PayableReference, error) {
	credential, err := c.credentials.GetActiveCredential(ctx)
	if err != nil {
		return payments.PayableReference{}, err
	}

	body := preferenceRequest{
		ExternalReference: order.ID,
		NotificationURL:   c.cfg.NotificationURL,
	}
	for _, item := range order.Items {
		body.Items = append(body.Items, preferenceItem{
			ID:         item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  json.Number(CentsToAmount(item.UnitPriceCents).StringFixed(2)),
			CurrencyID: c.cfg.Currency,
			PictureURL: item.ImageRef,
		})
	}
	if c.cfg.BackURL != "" {
		back := strings.TrimRight(c.cfg.BackURL, "/") + "/orders/" + order.ID
		body.BackURLs = map[string]string{"success": back, "pending": back, "failure": back}
		body.AutoReturn = "approved"
	}

	var resp preferenceResponse
	err = c.transport.do(ctx, request{
		operation: "create_preference",
		method:    http.MethodPost,
		url:       joinURL(c.cfg.BaseURL, "/checkout/preferences"),
		token:     credential.AccessToken,
		json:      body,
	}, &resp)
	if err != nil {
		return payments.PayableReference{}, err
	}
	if resp.ID == "" || resp.InitPoint == "" {
		return payments.PayableReference{}, fmt.Errorf("create_preference: %w: incomplete response", payments.ErrProviderUnavailable)
	}

	return payments.PayableReference{ReferenceID: resp.ID, PaymentURL: resp.InitPoint}, nil
}

type paymentResource struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	ExternalReference string          `json:"external_reference"`
	PreferenceID      string          `json:"preference_id"`
	DateApproved      *time.Time      `json:"date_approved"`
}

type paymentSearchResponse struct {
	Results []paymentResource `json:"results"`
}

// LookupPayments returns every payment the provider holds for the order.
func (c *Client) LookupPayments(ctx context.Context, orderID string) ([]payments.Payment, error) {
	credential, err := c.credentials.GetActiveCredential(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("external_reference", orderID)
	query.Set("sort", "date_created")
	query.Set("criteria", "desc")

	var resp paymentSearchResponse
	err = c.transport.do(ctx, request{
		operation: "search_payments",
		method:    http.MethodGet,
		url:       joinURL(c.cfg.BaseURL, "/v1/payments/search") + "?" + query.Encode(),
		token:     credential.AccessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]payments.Payment, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.toPayment())
	}
	return out, nil
}

// GetPayment fetches a single payment by provider id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error) {
	credential, err := c.credentials.GetActiveCredential(ctx)
	if err != nil {
		return nil, err
	}

	var resp paymentResource
	err = c.transport.do(ctx, request{
		operation: "get_payment",
		method:    http.MethodGet,
		url:       joinURL(c.cfg.BaseURL, "/v1/payments/"+url.PathEscape(paymentID)),
		token:     credential.AccessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	p := resp.toPayment()
	return &p, nil
}

func (r paymentResource) toPayment() payments.Payment {
	return payments.Payment{
		ID:               r.ID.String(),
		OrderReference:   r.ExternalReference,
		PayableReference: r.PreferenceID,
		Status:           payments.PaymentStatus(r.Status),
		AmountCents:      AmountToCents(r.TransactionAmount),
		Currency:         r.CurrencyID,
		ApprovedAt:       r.DateApproved,
	}
}

// CentsToAmount converts minor units to the provider's decimal major units.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// AmountToCents converts a provider amount to minor units, rounding half
// away from zero at the cent.
func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
