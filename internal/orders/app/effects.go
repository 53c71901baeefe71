package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Notification templates.
const (
	TemplatePaymentConfirmed    = "payment-confirmed"
	TemplateManualOrderPlaced   = "manual-order-placed"
	TemplateManualOrderReceived = "manual-order-received"
)

const defaultDispatchTimeout = 10 * time.Second

// ExecutorConfig tunes the effect executor.
type ExecutorConfig struct {
	// SellerEmail receives manual-channel order notices. Empty disables them.
	SellerEmail     string
	DispatchTimeout time.Duration
}

// Executor runs effect intents after an order write committed. Every intent
// is dispatched on its own goroutine with a context detached from the
// request, and failures are attached to the order instead of being returned.
type Executor struct {
	notifier ports.Notifier
	accounts ports.AccountDirectory
	repo     ports.OrderRepository
	logger   *slog.Logger
	cfg      ExecutorConfig
	now      func() time.Time

	wg sync.WaitGroup
}

// NewExecutor wires the executor. accounts may be nil, in which case the
// owner id is used as the recipient.
func NewExecutor(
	notifier ports.Notifier,
	accounts ports.AccountDirectory,
	repo ports.OrderRepository,
	logger *slog.Logger,
	cfg ExecutorConfig,
) *Executor {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	return &Executor{
		notifier: notifier,
		accounts: accounts,
		repo:     repo,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run schedules the intents and returns immediately.
func (e *Executor) Run(ctx context.Context, order domain.Order, effects []domain.Effect) {
	if len(effects) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, effect := range effects {
		e.wg.Add(1)
		go func(effect domain.Effect) {
			defer e.wg.Done()
			e.execute(detached, order, effect)
		}(effect)
	}
}

// Wait blocks until in-flight dispatches finish or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) execute(ctx context.Context, order domain.Order, effect domain.Effect) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()

	switch effect {
	case domain.EffectPaymentConfirmed:
		e.notifyOwner(ctx, order, TemplatePaymentConfirmed)
	case domain.EffectManualOrderPlaced:
		e.notifyOwner(ctx, order, TemplateManualOrderPlaced)
		if e.cfg.SellerEmail != "" {
			e.dispatch(ctx, order, TemplateManualOrderReceived, e.cfg.SellerEmail, notificationContext(order, nil))
		}
	default:
		e.logger.WarnContext(ctx, "unknown effect intent", "order_id", order.ID, "effect", string(effect))
	}
}

func (e *Executor) notifyOwner(ctx context.Context, order domain.Order, template string) {
	recipient := order.OwnerID
	var account *ports.Account
	if e.accounts != nil {
		found, err := e.accounts.Lookup(ctx, order.OwnerID)
		if err != nil {
			if !errors.Is(err, ports.ErrAccountNotFound) {
				e.recordFailure(ctx, order, template, recipient, err)
				return
			}
			e.logger.WarnContext(ctx, "order owner not found in account directory",
				"order_id", order.ID,
				"owner_id", order.OwnerID,
			)
		} else {
			account = found
			if found.Email != "" {
				recipient = found.Email
			}
		}
	}
	e.dispatch(ctx, order, template, recipient, notificationContext(order, account))
}

func (e *Executor) dispatch(ctx context.Context, order domain.Order, template, recipient string, data map[string]any) {
	err := e.notifier.Dispatch(ctx, ports.Notification{
		Template:  template,
		Recipient: recipient,
		OrderID:   order.ID,
		Context:   data,
	})
	if err != nil {
		e.recordFailure(ctx, order, template, recipient, err)
		return
	}
	e.logger.DebugContext(ctx, "notification dispatched",
		"order_id", order.ID,
		"template", template,
	)
}

func (e *Executor) recordFailure(ctx context.Context, order domain.Order, template, recipient string, cause error) {
	e.logger.WarnContext(ctx, "notification dispatch failed",
		"order_id", order.ID,
		"template", template,
		"recipient", recipient,
		"error", cause,
	)
	failure := domain.NotificationFailure{
		Template:  template,
		Recipient: recipient,
		Error:     cause.Error(),
		At:        e.now().UTC(),
	}
	if err := e.repo.RecordNotificationFailure(ctx, order.ID, failure); err != nil {
		e.logger.ErrorContext(ctx, "failed to record notification failure",
			"order_id", order.ID,
			"template", template,
			"error", err,
		)
	}
}

func notificationContext(order domain.Order, account *ports.Account) map[string]any {
	data := map[string]any{
		"order_id":        order.ID,
		"status":          string(order.Status),
		"total_cents":     order.TotalCents,
		"payment_channel": string(order.Channel),
		"items":           len(order.Items),
		"recipient_name":  order.Shipping.RecipientName,
	}
	if account != nil && account.Name != "" {
		data["owner_name"] = account.Name
	}
	return data
}
