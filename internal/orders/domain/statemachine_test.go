package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

func TestCanTransition(t *testing.T) {
	legal := map[domain.OrderStatus][]domain.OrderStatus{
		domain.StatusPending:                    {domain.StatusPaid, domain.StatusCancelled},
		domain.StatusAwaitingManualConfirmation: {domain.StatusPaid, domain.StatusCancelled},
		domain.StatusPaid:                       {domain.StatusShipped, domain.StatusCancelled},
		domain.StatusShipped:                    {domain.StatusDelivered, domain.StatusCancelled},
	}

	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			want := false
			for _, target := range legal[from] {
				if target == to {
					want = true
				}
			}
			if got := domain.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestDecide(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("entering paid emits payment confirmed", func(t *testing.T) {
		order := validOrder()

		d, err := domain.Decide(order, domain.TransitionRequest{Target: domain.StatusPaid, Actor: domain.ActorWebhook, At: at})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.NoOp {
			t.Fatal("expected a real transition")
		}
		if len(d.Effects) != 1 || d.Effects[0] != domain.EffectPaymentConfirmed {
			t.Errorf("expected [payment-confirmed], got %v", d.Effects)
		}
		if d.Entry.From != domain.StatusPending || d.Entry.To != domain.StatusPaid {
			t.Errorf("unexpected entry %+v", d.Entry)
		}
		if order.Status != domain.StatusPending {
			t.Error("Decide must not mutate the order")
		}
	})

	t.Run("re-entry is a no-op without effects", func(t *testing.T) {
		order := validOrder()
		order.Status = domain.StatusPaid

		d, err := domain.Decide(order, domain.TransitionRequest{Target: domain.StatusPaid, Actor: "admin-1", At: at})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !d.NoOp {
			t.Error("expected no-op")
		}
		if len(d.Effects) != 0 {
			t.Errorf("expected no effects, got %v", d.Effects)
		}
	})

	t.Run("illegal transition reports both statuses", func(t *testing.T) {
		order := validOrder()
		order.Status = domain.StatusCancelled

		_, err := domain.Decide(order, domain.TransitionRequest{Target: domain.StatusPaid, Actor: "admin-1", At: at})
		if !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected *TransitionError, got %T", err)
		}
		if terr.From != domain.StatusCancelled || terr.To != domain.StatusPaid {
			t.Errorf("unexpected transition error %+v", terr)
		}
	})

	t.Run("unknown target is a validation error", func(t *testing.T) {
		_, err := domain.Decide(validOrder(), domain.TransitionRequest{Target: "lost", Actor: "admin-1", At: at})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("missing actor is a validation error", func(t *testing.T) {
		_, err := domain.Decide(validOrder(), domain.TransitionRequest{Target: domain.StatusPaid, At: at})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestDecideCancel(t *testing.T) {
	at := time.Now().UTC()

	t.Run("delivered order surfaces AlreadyDelivered", func(t *testing.T) {
		order := validOrder()
		order.Status = domain.StatusDelivered

		_, err := domain.DecideCancel(order, "admin-1", "customer request", at)
		if !errors.Is(err, domain.ErrAlreadyDelivered) {
			t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
		}
	})

	t.Run("cancelled order is a no-op", func(t *testing.T) {
		order := validOrder()
		order.Status = domain.StatusCancelled

		d, err := domain.DecideCancel(order, domain.ActorSystem, "abandonment timeout", at)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !d.NoOp {
			t.Error("expected no-op")
		}
	})
}

func TestApply(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("walks a full path and keeps history in step", func(t *testing.T) {
		order := validOrder()
		order.History = []domain.HistoryEntry{{To: domain.StatusPending, Actor: order.OwnerID, Timestamp: at}}

		path := []domain.OrderStatus{domain.StatusPaid, domain.StatusShipped, domain.StatusDelivered}
		for i, target := range path {
			d, err := domain.Decide(order, domain.TransitionRequest{Target: target, Actor: "admin-1", At: at.Add(time.Duration(i+1) * time.Minute)})
			if err != nil {
				t.Fatalf("transition to %s failed: %v", target, err)
			}
			order.Apply(d)
		}

		if order.Status != domain.StatusDelivered {
			t.Fatalf("expected delivered, got %s", order.Status)
		}
		if len(order.History) != len(path)+1 {
			t.Fatalf("expected %d history entries, got %d", len(path)+1, len(order.History))
		}
		for i := 1; i < len(order.History); i++ {
			prev, cur := order.History[i-1], order.History[i]
			if cur.From != prev.To {
				t.Errorf("entry %d: from %s does not follow %s", i, cur.From, prev.To)
			}
			if !domain.CanTransition(cur.From, cur.To) {
				t.Errorf("entry %d: %s -> %s is not a graph edge", i, cur.From, cur.To)
			}
		}
		if order.DeliveredAt == nil || !order.DeliveredAt.Equal(at.Add(3*time.Minute)) {
			t.Errorf("expected delivery stamp, got %v", order.DeliveredAt)
		}
	})

	t.Run("cancellation metadata is recorded", func(t *testing.T) {
		order := validOrder()

		d, err := domain.DecideCancel(order, domain.ActorSystem, "abandonment timeout", at)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		order.Apply(d)

		if order.Cancellation == nil {
			t.Fatal("expected cancellation metadata")
		}
		if order.Cancellation.Reason != "abandonment timeout" || order.Cancellation.Actor != domain.ActorSystem {
			t.Errorf("unexpected cancellation %+v", order.Cancellation)
		}
	})

	t.Run("no-op decision leaves the order untouched", func(t *testing.T) {
		order := validOrder()
		before := len(order.History)

		order.Apply(domain.Decision{From: order.Status, To: order.Status, NoOp: true})

		if len(order.History) != before {
			t.Error("no-op must not append history")
		}
	})
}
