package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/payments"
	"github.com/dejobratic/orderflow/internal/payments/oauth"
)

type errorBody struct {
	Error           string             `json:"error"`
	Code            string             `json:"code"`
	Field           string             `json:"field,omitempty"`
	CurrentStatus   domain.OrderStatus `json:"current_status,omitempty"`
	RequestedStatus domain.OrderStatus `json:"requested_status,omitempty"`
}

// statusForError maps the error taxonomy to an HTTP status and a stable code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, oauth.ErrInvalidState), errors.Is(err, oauth.ErrMissingCode):
		return http.StatusBadRequest, "invalid_authorization"
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ports.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ports.ErrIdempotencyKeyInUse):
		return http.StatusConflict, "idempotency_key_conflict"
	case errors.Is(err, domain.ErrAlreadyDelivered):
		return http.StatusConflict, "already_delivered"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, payments.ErrNotConfigured):
		return http.StatusServiceUnavailable, "payment_provider_not_configured"
	case errors.Is(err, payments.ErrCredentialCorrupted):
		return http.StatusServiceUnavailable, "payment_credential_corrupted"
	case errors.Is(err, payments.ErrProviderTimeout):
		return http.StatusGatewayTimeout, "payment_provider_timeout"
	case errors.Is(err, payments.ErrProviderRejected):
		return http.StatusBadGateway, "payment_provider_rejected"
	case errors.Is(err, payments.ErrProviderUnavailable):
		return http.StatusBadGateway, "payment_provider_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	body := errorBody{Error: err.Error(), Code: code}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		body.CurrentStatus = transition.From
		body.RequestedStatus = transition.To
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		body.Error = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		body.Error = "online payment is not available, use the manual confirmation channel"
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}
