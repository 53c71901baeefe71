package domain

import (
	"slices"
	"time"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:                    {StatusPaid, StatusCancelled},
	StatusAwaitingManualConfirmation: {StatusPaid, StatusCancelled},
	StatusPaid:                       {StatusShipped, StatusCancelled},
	StatusShipped:                    {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Effect is a side-effect intent produced by a decision and executed after
// the order write commits.
type Effect string

const (
	EffectPaymentConfirmed  Effect = "payment-confirmed"
	EffectManualOrderPlaced Effect = "manual-order-placed"
)

// TransitionRequest asks the state machine to move an order.
type TransitionRequest struct {
	Target OrderStatus
	Actor  string
	Reason string
	At     time.Time
}

// Decision is the outcome of evaluating a request against an order. A NoOp
// decision must not be persisted and carries no effects.
type Decision struct {
	From    OrderStatus
	To      OrderStatus
	NoOp    bool
	Entry   HistoryEntry
	Effects []Effect
}

// Decide evaluates req against the current state of o without mutating it.
// Re-entry into the current status is a no-op, not an error.
func Decide(o Order, req TransitionRequest) (Decision, error) {
	if !req.Target.Valid() {
		return Decision{}, NewValidationError("status", "is not a known status")
	}
	if req.Actor == "" {
		return Decision{}, NewValidationError("actor", "is required")
	}

	if o.Status == req.Target {
		return Decision{From: o.Status, To: o.Status, NoOp: true}, nil
	}

	if !CanTransition(o.Status, req.Target) {
		return Decision{}, &TransitionError{From: o.Status, To: req.Target}
	}

	d := Decision{
		From: o.Status,
		To:   req.Target,
		Entry: HistoryEntry{
			From:      o.Status,
			To:        req.Target,
			Actor:     req.Actor,
			Reason:    req.Reason,
			Timestamp: req.At,
		},
	}
	if req.Target == StatusPaid {
		d.Effects = append(d.Effects, EffectPaymentConfirmed)
	}
	return d, nil
}

// DecideCancel is Decide for the cancelled target with the delivered guard
// surfaced as its own error.
func DecideCancel(o Order, actor, reason string, at time.Time) (Decision, error) {
	if o.Status == StatusDelivered {
		return Decision{}, ErrAlreadyDelivered
	}
	return Decide(o, TransitionRequest{Target: StatusCancelled, Actor: actor, Reason: reason, At: at})
}

// Apply writes an accepted decision into the order: status, history, and the
// metadata tied to the target status.
func (o *Order) Apply(d Decision) {
	if d.NoOp {
		return
	}
	at := d.Entry.Timestamp
	o.Status = d.To
	o.History = append(o.History, d.Entry)
	o.UpdatedAt = at

	switch d.To {
	case StatusDelivered:
		delivered := at
		o.DeliveredAt = &delivered
	case StatusCancelled:
		o.Cancellation = &Cancellation{
			Reason: d.Entry.Reason,
			Actor:  d.Entry.Actor,
			At:     at,
		}
	}
}
