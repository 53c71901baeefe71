package commands

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// EffectRunner executes side-effect intents after an order write committed.
// Implementations must not block the caller on delivery and must never
// report failures back into the write path.
type EffectRunner interface {
	Run(ctx context.Context, order domain.Order, effects []domain.Effect)
}

// NoopEffectRunner discards every intent.
type NoopEffectRunner struct{}

func (NoopEffectRunner) Run(context.Context, domain.Order, []domain.Effect) {}
