package commands

import (
	"context"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type CancelOrderCommand struct {
	OrderID string
	Actor   string
	Reason  string
	// OwnerID, when set, restricts the cancellation to that order owner.
	OwnerID string
	// AbandonedBefore, when set, turns the cancel into a conditional one:
	// it only applies while the order is still in an initial status and was
	// created before the given instant. Both are re-checked under the write
	// guard, so an order paid in the meantime is left alone.
	AbandonedBefore *time.Time
}

func (c CancelOrderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError("order_id", "is required")
	}
	if strings.TrimSpace(c.Actor) == "" {
		return domain.NewValidationError("actor", "is required")
	}
	if strings.TrimSpace(c.Reason) == "" {
		return domain.NewValidationError("reason", "is required")
	}
	return nil
}

type CancelHandler interface {
	Handle(ctx context.Context, cmd CancelOrderCommand) (*TransitionResult, error)
}

type CancelOrderCommandHandler struct {
	repo    ports.OrderRepository
	effects EffectRunner
	now     func() time.Time
}

func NewCancelOrderCommandHandler(repo ports.OrderRepository, effects EffectRunner, now func() time.Time) *CancelOrderCommandHandler {
	if effects == nil {
		effects = NoopEffectRunner{}
	}
	if now == nil {
		now = time.Now
	}
	return &CancelOrderCommandHandler{repo: repo, effects: effects, now: now}
}

func (h *CancelOrderCommandHandler) Handle(ctx context.Context, cmd CancelOrderCommand) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	at := h.now().UTC()
	order, decision, err := h.repo.Transition(ctx, cmd.OrderID, func(current domain.Order) (domain.Decision, error) {
		if cmd.OwnerID != "" && current.OwnerID != cmd.OwnerID {
			return domain.Decision{}, ports.ErrForbidden
		}
		if cmd.AbandonedBefore != nil {
			stillAbandoned := current.Status.IsInitial() &&
				current.Cancellation == nil &&
				current.CreatedAt.Before(*cmd.AbandonedBefore)
			if !stillAbandoned {
				return domain.Decision{From: current.Status, To: current.Status, NoOp: true}, nil
			}
		}
		return domain.DecideCancel(current, cmd.Actor, cmd.Reason, at)
	})
	if err != nil {
		return nil, err
	}

	if !decision.NoOp {
		h.effects.Run(ctx, *order, decision.Effects)
	}

	return &TransitionResult{Order: order, Applied: !decision.NoOp, Decision: decision}, nil
}
