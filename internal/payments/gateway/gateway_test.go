package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/gateway"
	"github.com/dejobratic/orderflow/internal/payments/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials struct {
	credential *vault.Credential
	err        error
}

func (s staticCredentials) GetActiveCredential(context.Context) (*vault.Credential, error) {
	return s.credential, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, handler http.HandlerFunc, creds gateway.CredentialSource) *gateway.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := gateway.Config{
		BaseURL:         server.URL,
		NotificationURL: "https://shop.example.com/v1/webhooks/payments",
		BackURL:         "https://shop.example.com",
		Currency:        "ARS",
		Timeout:         200 * time.Millisecond,
	}
	return gateway.NewClient(cfg, creds, server.Client(), nil, discardLogger())
}

func activeCredentials() staticCredentials {
	return staticCredentials{credential: &vault.Credential{ID: "cred-1", AccessToken: "access-token"}}
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID: "order-1",
		Items: []domain.LineItem{
			{ProductID: "p-1", Title: "Mug", Quantity: 2, UnitPriceCents: 5000, ImageRef: "https://img.example.com/mug.png"},
			{ProductID: "p-2", Title: "Towel", Quantity: 1, UnitPriceCents: 4999},
		},
		TotalCents: 14999,
	}
}

func TestCreatePayableReference(t *testing.T) {
	t.Run("sends the order as a preference", func(t *testing.T) {
		var body map[string]any
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/checkout/preferences", r.URL.Path)
			assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"pref-123","init_point":"https://pay.example.com/checkout?pref_id=pref-123"}`))
		}, activeCredentials())

		ref, err := client.CreatePayableReference(context.Background(), sampleOrder())
		require.NoError(t, err)

		assert.Equal(t, "pref-123", ref.ReferenceID)
		assert.Contains(t, ref.PaymentURL, "pref-123")
		assert.Equal(t, "order-1", body["external_reference"])
		items := body["items"].([]any)
		require.Len(t, items, 2)
		assert.Equal(t, 50.0, items[0].(map[string]any)["unit_price"])
		assert.Equal(t, 49.99, items[1].(map[string]any)["unit_price"])
	})

	t.Run("missing credential is not configured", func(t *testing.T) {
		called := false
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) { called = true }, staticCredentials{err: payments.ErrNotConfigured})

		_, err := client.CreatePayableReference(context.Background(), sampleOrder())
		assert.ErrorIs(t, err, payments.ErrNotConfigured)
		assert.False(t, called)
	})

	t.Run("error taxonomy", func(t *testing.T) {
		tests := []struct {
			name    string
			handler http.HandlerFunc
			want    error
		}{
			{
				name: "bad request is a rejection",
				handler: func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, `{"message":"invalid items"}`, http.StatusBadRequest)
				},
				want: payments.ErrProviderRejected,
			},
			{
				name: "server error is unavailable",
				handler: func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, "boom", http.StatusBadGateway)
				},
				want: payments.ErrProviderUnavailable,
			},
			{
				name: "throttling is unavailable",
				handler: func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusTooManyRequests)
				},
				want: payments.ErrProviderUnavailable,
			},
			{
				name: "slow provider times out",
				handler: func(w http.ResponseWriter, r *http.Request) {
					select {
					case <-time.After(2 * time.Second):
					case <-r.Context().Done():
					}
				},
				want: payments.ErrProviderTimeout,
			},
			{
				name: "garbage body is unavailable",
				handler: func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte("<html>"))
				},
				want: payments.ErrProviderUnavailable,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				client := newClient(t, tt.handler, activeCredentials())

				_, err := client.CreatePayableReference(context.Background(), sampleOrder())
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
				if !errors.Is(tt.want, payments.ErrProviderTimeout) {
					assert.NotErrorIs(t, err, payments.ErrProviderTimeout)
				}
			})
		}
	})

	t.Run("provider error keeps status and body", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}, activeCredentials())

		_, err := client.CreatePayableReference(context.Background(), sampleOrder())

		var providerErr *gateway.ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
		assert.Equal(t, "invalid token", providerErr.Body)
		assert.Equal(t, "create_preference", providerErr.Operation)
	})
}

func TestLookupPayments(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/search", r.URL.Path)
		assert.Equal(t, "order-1", r.URL.Query().Get("external_reference"))
		_, _ = w.Write([]byte(`{"results":[
			{"id":111,"status":"approved","transaction_amount":149.99,"currency_id":"ARS","external_reference":"order-1","date_approved":"2025-03-01T12:00:00.000-03:00"},
			{"id":110,"status":"rejected","transaction_amount":149.99,"currency_id":"ARS","external_reference":"order-1"}
		]}`))
	}, activeCredentials())

	found, err := client.LookupPayments(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "111", found[0].ID)
	assert.Equal(t, payments.PaymentApproved, found[0].Status)
	assert.Equal(t, int64(14999), found[0].AmountCents)
	assert.NotNil(t, found[0].ApprovedAt)
	assert.Equal(t, payments.PaymentRejected, found[1].Status)
	assert.Nil(t, found[1].ApprovedAt)
}

func TestGetPayment(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/987", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":987,"status":"in_process","transaction_amount":"10.5","external_reference":"order-9","preference_id":"pref-9"}`))
	}, activeCredentials())

	p, err := client.GetPayment(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, "order-9", p.OrderReference)
	assert.Equal(t, "pref-9", p.PayableReference)
	assert.Equal(t, int64(1050), p.AmountCents)
	assert.False(t, p.Status.Settled())
}

func TestAmountConversion(t *testing.T) {
	tests := []struct {
		amount string
		cents  int64
	}{
		{"150", 15000},
		{"150.00", 15000},
		{"0.1", 10},
		{"49.995", 5000},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.cents, gateway.AmountToCents(decimal.RequireFromString(tt.amount)))
		})
	}

	assert.Equal(t, "150.00", gateway.CentsToAmount(15000).StringFixed(2))
}

func TestOAuthClient(t *testing.T) {
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		switch r.URL.Path {
		case "/oauth/token":
			if r.PostForm.Get("code") == "bad-code" || r.PostForm.Get("refresh_token") == "revoked" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"APP_USR-new","refresh_token":"TG-new","expires_in":21600,"scope":"offline_access read write","user_id":42}`))
		case "/oauth/revoke":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	cfg := gateway.Config{
		BaseURL:      server.URL,
		AuthURL:      "https://auth.example.com",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://shop.example.com/v1/payments/oauth/callback",
	}
	client := gateway.NewOAuthClient(cfg, server.Client(), nil, discardLogger())
	ctx := context.Background()

	t.Run("authorization url carries the state", func(t *testing.T) {
		link := client.AuthorizationURL("state-token")
		assert.True(t, strings.HasPrefix(link, "https://auth.example.com/authorization?"))
		assert.Contains(t, link, "state=state-token")
		assert.Contains(t, link, "client_id=client-1")
	})

	t.Run("exchange code", func(t *testing.T) {
		tokens, err := client.ExchangeAuthorizationCode(ctx, "good-code")
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-new", tokens.AccessToken)
		assert.Equal(t, "TG-new", tokens.RefreshToken)
		assert.Equal(t, "42", tokens.ProviderUserID)
		assert.WithinDuration(t, time.Now().Add(6*time.Hour), tokens.ExpiresAt, time.Minute)
		assert.Equal(t, []string{"authorization_code"}, form["grant_type"])
		assert.Equal(t, []string{"secret-1"}, form["client_secret"])
	})

	t.Run("bad code is rejected", func(t *testing.T) {
		_, err := client.ExchangeAuthorizationCode(ctx, "bad-code")
		assert.ErrorIs(t, err, payments.ErrProviderRejected)
	})

	t.Run("refresh", func(t *testing.T) {
		tokens, err := client.RefreshToken(ctx, "TG-old")
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-new", tokens.AccessToken)
		assert.Equal(t, []string{"refresh_token"}, form["grant_type"])

		_, err = client.RefreshToken(ctx, "revoked")
		assert.ErrorIs(t, err, payments.ErrProviderRejected)
	})

	t.Run("revoke", func(t *testing.T) {
		err := client.Revoke(ctx, vault.Credential{AccessToken: "APP_USR-old"})
		require.NoError(t, err)
		assert.Equal(t, []string{"APP_USR-old"}, form["token"])
	})
}

func TestRateLimiterRespectsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(server.Close)

	cfg := gateway.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, RequestsPerSecond: 0.1, Burst: 1}
	client := gateway.NewClient(cfg, activeCredentials(), server.Client(), nil, discardLogger())

	_, err := client.LookupPayments(context.Background(), "order-1")
	require.NoError(t, err)

	_, err = client.LookupPayments(context.Background(), "order-1")
	assert.ErrorIs(t, err, payments.ErrProviderTimeout)
}
