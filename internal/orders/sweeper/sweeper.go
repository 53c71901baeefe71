// Package sweeper cancels orders left in an initial status past the
// abandonment window.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/queries"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
)

const (
	DefaultWindow     = 30 * time.Minute
	DefaultBatchSize  = 200
	AbandonmentReason = "abandonment timeout"
)

// Source lists abandonment candidates.
type Source interface {
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// OrderService cancels orders and reports the status summary.
type OrderService interface {
	CancelOrder(ctx context.Context, cmd commands.CancelOrderCommand) (*commands.TransitionResult, error)
	Summary(ctx context.Context) (*queries.Summary, error)
}

type Config struct {
	Window    time.Duration
	BatchSize int
}

// Report is the outcome of one sweep.
type Report struct {
	queries.Summary
	Cancelled int       `json:"cancelled"`
	Failed    int       `json:"failed"`
	Cutoff    time.Time `json:"cutoff"`
}

type Sweeper struct {
	source  Source
	service OrderService
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(source Source, service OrderService, cfg Config, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Sweeper {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		source:  source,
		service: service,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     now,
	}
}

// Sweep cancels every order still pending or awaiting manual confirmation
// that was created before now minus the window. Each cancellation re-checks
// status and age under the order's write guard, so orders paid or cancelled
// since they were listed are skipped, and concurrent sweeps converge.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	start := time.Now()
	cutoff := s.now().UTC().Add(-s.cfg.Window)
	report := &Report{Cutoff: cutoff}
	// Orders that fail stay selectable and show up again in later batches.
	failed := make(map[string]struct{})

	for {
		batch, err := s.source.ListAbandoned(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list abandoned orders: %w", err)
		}

		progressed := 0
		for _, order := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err := s.service.CancelOrder(ctx, commands.CancelOrderCommand{
				OrderID:         order.ID,
				Actor:           domain.ActorSystem,
				Reason:          AbandonmentReason,
				AbandonedBefore: &cutoff,
			})
			if err != nil {
				if _, seen := failed[order.ID]; !seen {
					failed[order.ID] = struct{}{}
					report.Failed++
					s.logger.WarnContext(ctx, "failed to cancel abandoned order",
						"order_id", order.ID,
						"error", err,
					)
				}
				continue
			}
			progressed++
			if result.Applied {
				report.Cancelled++
			}
		}

		// A batch where nothing moved would be listed again unchanged.
		if len(batch) < s.cfg.BatchSize || progressed == 0 {
			break
		}
	}

	summary, err := s.service.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize orders: %w", err)
	}
	report.Summary = *summary

	s.metrics.RecordSweep(ctx, report.Cancelled, time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "abandonment sweep finished",
		"cancelled", report.Cancelled,
		"failed", report.Failed,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// Run sweeps every interval until ctx is done. A failed sweep is logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "abandonment sweep failed", "error", err)
			}
		}
	}
}
