package queries

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type ListOrdersQuery struct {
	Filter ports.ListFilter
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	if query.Filter.Status != nil && !query.Filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "is not a known status")
	}
	return h.repo.List(ctx, query.Filter.Normalize())
}
