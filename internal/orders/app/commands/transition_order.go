package commands

import (
	"context"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type TransitionOrderCommand struct {
	OrderID string
	Target  domain.OrderStatus
	Actor   string
	Reason  string
}

func (c TransitionOrderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError("order_id", "is required")
	}
	if strings.TrimSpace(c.Actor) == "" {
		return domain.NewValidationError("actor", "is required")
	}
	if !c.Target.Valid() {
		return domain.NewValidationError("status", "is not a known status")
	}
	return nil
}

// TransitionResult reports the order after the call and whether a
// transition was written. Applied is false for no-op re-entries.
type TransitionResult struct {
	Order    *domain.Order
	Applied  bool
	Decision domain.Decision
}

type TransitionHandler interface {
	Handle(ctx context.Context, cmd TransitionOrderCommand) (*TransitionResult, error)
}

type TransitionOrderCommandHandler struct {
	repo    ports.OrderRepository
	effects EffectRunner
	now     func() time.Time
}

func NewTransitionOrderCommandHandler(repo ports.OrderRepository, effects EffectRunner, now func() time.Time) *TransitionOrderCommandHandler {
	if effects == nil {
		effects = NoopEffectRunner{}
	}
	if now == nil {
		now = time.Now
	}
	return &TransitionOrderCommandHandler{repo: repo, effects: effects, now: now}
}

func (h *TransitionOrderCommandHandler) Handle(ctx context.Context, cmd TransitionOrderCommand) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	req := domain.TransitionRequest{
		Target: cmd.Target,
		Actor:  cmd.Actor,
		Reason: cmd.Reason,
		At:     h.now().UTC(),
	}

	order, decision, err := h.repo.Transition(ctx, cmd.OrderID, func(current domain.Order) (domain.Decision, error) {
		return domain.Decide(current, req)
	})
	if err != nil {
		return nil, err
	}

	if !decision.NoOp {
		h.effects.Run(ctx, *order, decision.Effects)
	}

	return &TransitionResult{Order: order, Applied: !decision.NoOp, Decision: decision}, nil
}
