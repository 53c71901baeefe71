package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/sweeper"
	"github.com/dejobratic/orderflow/internal/payments/vault"
	"github.com/dejobratic/orderflow/internal/payments/webhook"
	"github.com/go-chi/chi/v5"
)

// PaymentChecker reconciles an order against the provider on demand.
type PaymentChecker interface {
	CheckOrder(ctx context.Context, orderID string) (*webhook.Result, error)
}

// Sweeper runs one abandonment sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (*sweeper.Report, error)
}

// ProviderLinker connects the seller's payment provider account.
type ProviderLinker interface {
	Link(ctx context.Context, actorID string) (string, error)
	Callback(ctx context.Context, code, state string) (*vault.Credential, error)
	Unlink(ctx context.Context, actorID string) error
}

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service  *app.Service
	payments PaymentChecker
	sweeper  Sweeper
	linker   ProviderLinker
	logger   *slog.Logger
}

func NewHandler(service *app.Service, payments PaymentChecker, sweeper Sweeper, linker ProviderLinker, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		payments: payments,
		sweeper:  sweeper,
		linker:   linker,
		logger:   logger,
	}
}

type createOrderRequest struct {
	Items      []commands.LineItemInput `json:"items"`
	TotalCents int64                    `json:"total_cents"`
	Shipping   domain.ShippingInfo      `json:"shipping"`
	Channel    domain.PaymentChannel    `json:"payment_channel"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var payload createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	result, err := h.service.CreateOrder(r.Context(), actor.ID, idemKey, app.CreateOrderInput{
		Items:      payload.Items,
		TotalCents: payload.TotalCents,
		Shipping:   payload.Shipping,
		Channel:    payload.Channel,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, status, map[string]any{"order": result.Order})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), ownerScope(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := ports.ListFilter{OwnerID: ownerScope(r)}
	query := r.URL.Query()
	if statusParam := query.Get("status"); statusParam != "" {
		status := domain.OrderStatus(statusParam)
		filter.Status = &status
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(query.Get("page_size")); err == nil {
		filter.PageSize = pageSize
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var payload cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	result, err := h.service.CancelOrder(r.Context(), commands.CancelOrderCommand{
		OrderID: chi.URLParam(r, "id"),
		Actor:   actor.ID,
		Reason:  payload.Reason,
		OwnerID: ownerScope(r),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": result.Order, "applied": result.Applied})
}

type transitionRequest struct {
	Status domain.OrderStatus `json:"status"`
	Reason string             `json:"reason"`
}

// transitionOrder is the privileged manual transition. Cancellation goes
// through the cancel use case so delivered orders get AlreadyDelivered.
func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var payload transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	id := chi.URLParam(r, "id")
	var (
		result *commands.TransitionResult
		err    error
	)
	if payload.Status == domain.StatusCancelled {
		result, err = h.service.CancelOrder(r.Context(), commands.CancelOrderCommand{
			OrderID: id,
			Actor:   actor.ID,
			Reason:  payload.Reason,
		})
	} else {
		result, err = h.service.TransitionOrder(r.Context(), commands.TransitionOrderCommand{
			OrderID: id,
			Target:  payload.Status,
			Actor:   actor.ID,
			Reason:  payload.Reason,
		})
	}
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": result.Order, "applied": result.Applied})
}

func (h *Handler) checkPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.GetOrder(r.Context(), id, ownerScope(r)); err != nil {
		h.writeFailure(w, r, err)
		return
	}

	result, err := h.payments.CheckOrder(r.Context(), id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": result.Order, "outcome": result.Outcome})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) linkProvider(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	link, err := h.linker.Link(r.Context(), actor.ID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorization_url": link})
}

func (h *Handler) providerCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	credential, err := h.linker.Callback(r.Context(), query.Get("code"), query.Get("state"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "linked",
		"seller_id":        credential.SellerID,
		"provider_user_id": credential.ProviderUserID,
		"expires_at":       credential.ExpiresAt,
	})
}

func (h *Handler) unlinkProvider(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	if err := h.linker.Unlink(r.Context(), actor.ID); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownerScope restricts non-admin callers to their own orders.
func ownerScope(r *http.Request) string {
	actor, _ := ActorFrom(r.Context())
	if actor.IsAdmin() {
		return ""
	}
	return actor.ID
}
