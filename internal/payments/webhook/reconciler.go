package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/payments"
)

// Outcome names what reconciliation did with a payment or event.
type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeAlreadyPaid  Outcome = "already_paid"
	OutcomeNotSettled   Outcome = "not_settled"
	OutcomeFlagged      Outcome = "flagged_for_review"
	OutcomeUnknownOrder Outcome = "unknown_order"
	OutcomeNoPayment    Outcome = "no_payment"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDuplicate    Outcome = "duplicate"
)

// PaymentSource is the provider view the reconciler reads from.
type PaymentSource interface {
	GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error)
	LookupPayments(ctx context.Context, orderID string) ([]payments.Payment, error)
}

// OrderStore is the slice of the order repository reconciliation needs.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	FlagForReview(ctx context.Context, id string, reason string) error
}

// OrderTransitioner applies status transitions through the state machine.
type OrderTransitioner interface {
	TransitionOrder(ctx context.Context, cmd commands.TransitionOrderCommand) (*commands.TransitionResult, error)
}

// Result is the reconciliation outcome together with the order it touched.
type Result struct {
	Outcome Outcome
	Order   *domain.Order
}

// Reconciler compares provider payments with stored orders and moves
// orders to paid when the provider reports an approved payment for the
// exact order total.
type Reconciler struct {
	payments PaymentSource
	orders   OrderStore
	service  OrderTransitioner
	logger   *slog.Logger
}

func NewReconciler(source PaymentSource, orders OrderStore, service OrderTransitioner, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		payments: source,
		orders:   orders,
		service:  service,
		logger:   logger,
	}
}

// ReconcilePayment fetches the payment by provider id and applies it.
func (r *Reconciler) ReconcilePayment(ctx context.Context, paymentID string) (*Result, error) {
	payment, err := r.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	return r.Apply(ctx, *payment)
}

// CheckOrder asks the provider for every payment of the order and applies
// the first approved one. Orders without an approved payment are returned
// unchanged.
func (r *Reconciler) CheckOrder(ctx context.Context, orderID string) (*Result, error) {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	found, err := r.payments.LookupPayments(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lookup payments for %s: %w", orderID, err)
	}

	for _, payment := range found {
		if payment.Status.Settled() {
			if payment.OrderReference == "" {
				payment.OrderReference = orderID
			}
			return r.Apply(ctx, payment)
		}
	}

	outcome := OutcomeNoPayment
	if len(found) > 0 {
		outcome = OutcomeNotSettled
	}
	return &Result{Outcome: outcome, Order: order}, nil
}

// Apply reconciles one payment record against its order.
func (r *Reconciler) Apply(ctx context.Context, payment payments.Payment) (*Result, error) {
	logger := r.logger.With("payment_id", payment.ID)

	if payment.OrderReference == "" && payment.PayableReference == "" {
		logger.WarnContext(ctx, "payment carries no order reference")
		return &Result{Outcome: OutcomeUnknownOrder}, nil
	}

	order, err := r.resolveOrder(ctx, payment)
	if errors.Is(err, ports.ErrNotFound) {
		logger.WarnContext(ctx, "payment references an unknown order",
			"order_reference", payment.OrderReference,
			"payable_reference", payment.PayableReference,
		)
		return &Result{Outcome: OutcomeUnknownOrder}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	logger = logger.With("order_id", order.ID)

	if !payment.Status.Settled() {
		logger.InfoContext(ctx, "payment not settled", "payment_status", payment.Status)
		return &Result{Outcome: OutcomeNotSettled, Order: order}, nil
	}

	if payment.AmountCents != order.TotalCents {
		reason := fmt.Sprintf("amount mismatch: provider reported %d, order total %d", payment.AmountCents, order.TotalCents)
		return r.flag(ctx, logger, order, reason)
	}

	switch order.Status {
	case domain.StatusCancelled:
		return r.flag(ctx, logger, order, fmt.Sprintf("approved payment %s received for cancelled order", payment.ID))
	case domain.StatusShipped, domain.StatusDelivered:
		return &Result{Outcome: OutcomeAlreadyPaid, Order: order}, nil
	}

	result, err := r.service.TransitionOrder(ctx, commands.TransitionOrderCommand{
		OrderID: order.ID,
		Target:  domain.StatusPaid,
		Actor:   domain.ActorWebhook,
		Reason:  "payment " + payment.ID + " approved",
	})
	if errors.Is(err, domain.ErrIllegalTransition) {
		// Lost a race against a cancellation.
		current, getErr := r.orders.GetByID(ctx, order.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reload order: %w", getErr)
		}
		return r.flag(ctx, logger, current, fmt.Sprintf("approved payment %s could not be applied: %v", payment.ID, err))
	}
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	if !result.Applied {
		return &Result{Outcome: OutcomeAlreadyPaid, Order: result.Order}, nil
	}
	logger.InfoContext(ctx, "order paid by provider payment")
	return &Result{Outcome: OutcomePaid, Order: result.Order}, nil
}

// resolveOrder prefers the order id the payment carries and falls back to
// the payable reference stored on the order at creation.
func (r *Reconciler) resolveOrder(ctx context.Context, payment payments.Payment) (*domain.Order, error) {
	if payment.OrderReference != "" {
		return r.orders.GetByID(ctx, payment.OrderReference)
	}
	return r.orders.GetByPaymentReference(ctx, payment.PayableReference)
}

func (r *Reconciler) flag(ctx context.Context, logger *slog.Logger, order *domain.Order, reason string) (*Result, error) {
	if err := r.orders.FlagForReview(ctx, order.ID, reason); err != nil {
		return nil, fmt.Errorf("flag order for review: %w", err)
	}
	logger.WarnContext(ctx, "order flagged for review", "reason", reason)

	flagged := *order
	flagged.NeedsReview = true
	flagged.ReviewReason = reason
	return &Result{Outcome: OutcomeFlagged, Order: &flagged}, nil
}
