package queries

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Summary is the count and value of orders grouped by status.
type Summary struct {
	ByStatus    []ports.StatusSummary `json:"by_status"`
	TotalOrders int64                 `json:"total_orders"`
	TotalCents  int64                 `json:"total_cents"`
}

type SummaryQueryHandler struct {
	repo ports.OrderRepository
}

func NewSummaryQueryHandler(repo ports.OrderRepository) *SummaryQueryHandler {
	return &SummaryQueryHandler{repo: repo}
}

// Handle returns every status, including the ones with no orders.
func (h *SummaryQueryHandler) Handle(ctx context.Context) (*Summary, error) {
	rows, err := h.repo.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[domain.OrderStatus]ports.StatusSummary, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row
	}

	summary := &Summary{ByStatus: make([]ports.StatusSummary, 0, len(domain.AllStatuses))}
	for _, status := range domain.AllStatuses {
		row, ok := byStatus[status]
		if !ok {
			row = ports.StatusSummary{Status: status}
		}
		summary.ByStatus = append(summary.ByStatus, row)
		summary.TotalOrders += row.Count
		summary.TotalCents += row.TotalCents
	}
	return summary, nil
}
