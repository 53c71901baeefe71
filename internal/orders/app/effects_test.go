package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
	fail map[string]error
}

func (n *fakeNotifier) Dispatch(_ context.Context, notification ports.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.fail[notification.Template]; ok {
		return err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Template+":"+s.Recipient)
	}
	sort.Strings(out)
	return out
}

type fakeDirectory map[string]ports.Account

func (d fakeDirectory) Lookup(_ context.Context, id string) (*ports.Account, error) {
	a, ok := d[id]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}
	return &a, nil
}

func seedPaidOrder(t *testing.T, repo *memory.Repository) domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := domain.Order{
		ID:         "order-1",
		OwnerID:    "user-1",
		Items:      []domain.LineItem{{ProductID: "p-1", Quantity: 1, UnitPriceCents: 1500}},
		TotalCents: 1500,
		Status:     domain.StatusPaid,
		Channel:    domain.ChannelManual,
		History:    []domain.HistoryEntry{{To: domain.StatusPaid, Actor: "user-1", Timestamp: now}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, _, err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return order
}

func waitForExecutor(t *testing.T, executor *app.Executor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := executor.Wait(ctx); err != nil {
		t.Fatalf("executor did not drain: %v", err)
	}
}

func TestExecutor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	directory := fakeDirectory{"user-1": {ID: "user-1", Name: "Ana", Email: "ana@example.com"}}

	t.Run("payment confirmed goes to the owner email", func(t *testing.T) {
		repo := memory.NewRepository()
		order := seedPaidOrder(t, repo)
		notifier := &fakeNotifier{}
		executor := app.NewExecutor(notifier, directory, repo, logger, app.ExecutorConfig{})

		executor.Run(context.Background(), order, []domain.Effect{domain.EffectPaymentConfirmed})
		waitForExecutor(t, executor)

		got := notifier.templates()
		if len(got) != 1 || got[0] != "payment-confirmed:ana@example.com" {
			t.Errorf("unexpected notifications: %v", got)
		}
	})

	t.Run("manual order notifies owner and seller", func(t *testing.T) {
		repo := memory.NewRepository()
		order := seedPaidOrder(t, repo)
		notifier := &fakeNotifier{}
		executor := app.NewExecutor(notifier, directory, repo, logger, app.ExecutorConfig{SellerEmail: "shop@example.com"})

		executor.Run(context.Background(), order, []domain.Effect{domain.EffectManualOrderPlaced})
		waitForExecutor(t, executor)

		got := notifier.templates()
		want := []string{"manual-order-placed:ana@example.com", "manual-order-received:shop@example.com"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("expected %s, got %s", want[i], got[i])
			}
		}
	})

	t.Run("dispatch failure is recorded on the order", func(t *testing.T) {
		repo := memory.NewRepository()
		order := seedPaidOrder(t, repo)
		notifier := &fakeNotifier{fail: map[string]error{
			app.TemplatePaymentConfirmed: errors.New("smtp unavailable"),
		}}
		executor := app.NewExecutor(notifier, directory, repo, logger, app.ExecutorConfig{})

		executor.Run(context.Background(), order, []domain.Effect{domain.EffectPaymentConfirmed})
		waitForExecutor(t, executor)

		stored, err := repo.GetByID(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if stored.Status != domain.StatusPaid {
			t.Errorf("expected status to stay paid, got %s", stored.Status)
		}
		if len(stored.Notifications) != 1 {
			t.Fatalf("expected 1 recorded failure, got %d", len(stored.Notifications))
		}
		failure := stored.Notifications[0]
		if failure.Template != app.TemplatePaymentConfirmed || failure.Error != "smtp unavailable" {
			t.Errorf("unexpected failure record: %+v", failure)
		}
	})

	t.Run("cancelled request context does not stop dispatch", func(t *testing.T) {
		repo := memory.NewRepository()
		order := seedPaidOrder(t, repo)
		notifier := &fakeNotifier{}
		executor := app.NewExecutor(notifier, nil, repo, logger, app.ExecutorConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		executor.Run(ctx, order, []domain.Effect{domain.EffectPaymentConfirmed})
		waitForExecutor(t, executor)

		got := notifier.templates()
		if len(got) != 1 || got[0] != "payment-confirmed:user-1" {
			t.Errorf("unexpected notifications: %v", got)
		}
	})
}
