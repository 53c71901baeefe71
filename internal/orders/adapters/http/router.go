package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig lists what NewRouter mounts. Webhook, Health and Ready are
// optional.
type RouterConfig struct {
	Handler *Handler
	Auth    *Authenticator
	Webhook http.Handler
	Health  http.HandlerFunc
	Ready   http.HandlerFunc
	Metrics *Metrics
	Logger  *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(WithLogging(cfg.Logger))
	r.Use(WithMetrics(cfg.Metrics))

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health)
	}
	if cfg.Ready != nil {
		r.Get("/readyz", cfg.Ready)
	}
	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/v1/webhooks/payments", cfg.Webhook)
	}
	r.Get("/v1/payments/oauth/callback", h.providerCallback)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/cancel", h.cancelOrder)
			r.Post("/{id}/payment-status", h.checkPayment)
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/orders/{id}/transitions", h.transitionOrder)
			r.Get("/orders/summary", h.summary)
			r.Post("/sweeps", h.sweep)
			r.Get("/payments/link", h.linkProvider)
			r.Delete("/payments/link", h.unlinkProvider)
		})
	})

	return r
}
