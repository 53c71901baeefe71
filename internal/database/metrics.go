package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query outcomes recorded with every repository call.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Metrics struct {
	meter         metric.Meter
	queryDuration metric.Float64Histogram
	queriesTotal  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Repository call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	m.queriesTotal, err = meter.Int64Counter(
		"db_queries_total",
		metric.WithDescription("Repository calls by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_queries_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.queryDuration.Record(ctx, durationSeconds, attrs)
	m.queriesTotal.Add(ctx, 1, attrs)
}

// ObservePool reports connection pool usage on every collection.
func (m *Metrics) ObservePool(pool *pgxpool.Pool) error {
	acquired, err := m.meter.Int64ObservableGauge(
		"db_pool_acquired_connections",
		metric.WithDescription("Connections currently checked out of the pool"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_acquired_connections gauge: %w", err)
	}
	idle, err := m.meter.Int64ObservableGauge(
		"db_pool_idle_connections",
		metric.WithDescription("Idle connections held by the pool"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_idle_connections gauge: %w", err)
	}
	maxConns, err := m.meter.Int64ObservableGauge(
		"db_pool_max_connections",
		metric.WithDescription("Configured pool size"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_max_connections gauge: %w", err)
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(maxConns, int64(stat.MaxConns()))
		return nil
	}, acquired, idle, maxConns)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}
