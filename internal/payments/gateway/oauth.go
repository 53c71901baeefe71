package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/vault"
)

// OAuthClient talks to the provider's authorization and token endpoints.
// It needs no stored credential, so the vault can use it to refresh.
type OAuthClient struct {
	cfg       Config
	transport *transport
	now       func() time.Time
}

func NewOAuthClient(cfg Config, httpClient *http.Client, metrics *Metrics, logger *slog.Logger) *OAuthClient {
	return &OAuthClient{
		cfg:       cfg,
		transport: newTransport(cfg, httpClient, metrics, logger),
		now:       time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
}

// AuthorizationURL is where the seller grants access. state is echoed back
// to the callback unchanged.
func (c *OAuthClient) AuthorizationURL(state string) string {
	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("response_type", "code")
	query.Set("platform_id", "mp")
	query.Set("redirect_uri", c.cfg.RedirectURI)
	query.Set("state", state)
	return joinURL(c.cfg.AuthURL, "/authorization") + "?" + query.Encode()
}

// ExchangeAuthorizationCode trades a one-time code for a token set.
func (c *OAuthClient) ExchangeAuthorizationCode(ctx context.Context, code string) (payments.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.token(ctx, "exchange_code", form)
}

// RefreshToken implements vault.Refresher.
func (c *OAuthClient) RefreshToken(ctx context.Context, refreshToken string) (payments.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, "refresh_token", form)
}

func (c *OAuthClient) token(ctx context.Context, operation string, form url.Values) (payments.TokenSet, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	var resp tokenResponse
	err := c.transport.do(ctx, request{
		operation: operation,
		method:    http.MethodPost,
		url:       joinURL(c.cfg.BaseURL, "/oauth/token"),
		form:      form,
	}, &resp)
	if err != nil {
		return payments.TokenSet{}, err
	}
	if resp.AccessToken == "" {
		return payments.TokenSet{}, fmt.Errorf("%s: %w: empty access token", operation, payments.ErrProviderRejected)
	}

	tokens := payments.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		ExpiresAt:    c.now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.UserID != 0 {
		tokens.ProviderUserID = strconv.FormatInt(resp.UserID, 10)
	}
	return tokens, nil
}

// Revoke invalidates the credential's tokens upstream. Callers treat
// failures as best effort.
func (c *OAuthClient) Revoke(ctx context.Context, credential vault.Credential) error {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("token", credential.AccessToken)

	return c.transport.do(ctx, request{
		operation: "revoke_token",
		method:    http.MethodPost,
		url:       joinURL(c.cfg.BaseURL, "/oauth/revoke"),
		form:      form,
	}, nil)
}
