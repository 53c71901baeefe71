package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersCreatedTotal    metric.Int64Counter
	orderCreationDuration metric.Float64Histogram
	transitionsTotal      metric.Int64Counter
	abandonedCancelled    metric.Int64Counter
	sweepDuration         metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of order creation requests by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Duration of order creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.transitionsTotal, err = meter.Int64Counter(
		"order_transitions_total",
		metric.WithDescription("Status transition attempts by target and outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_transitions_total counter: %w", err)
	}

	m.abandonedCancelled, err = meter.Int64Counter(
		"orders_abandoned_cancelled_total",
		metric.WithDescription("Orders cancelled by the abandonment sweeper"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_abandoned_cancelled_total counter: %w", err)
	}

	m.sweepDuration, err = meter.Float64Histogram(
		"abandonment_sweep_duration_seconds",
		metric.WithDescription("Duration of abandonment sweeps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create abandonment_sweep_duration histogram: %w", err)
	}

	return m, nil
}

// RecordOrderCreated counts a creation request. outcome is one of
// created, replayed or error.
func (m *Metrics) RecordOrderCreated(ctx context.Context, channel, outcome string) {
	if m == nil {
		return
	}
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	if m == nil {
		return
	}
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

// RecordTransition counts a transition attempt. outcome is one of
// applied, noop or rejected.
func (m *Metrics) RecordTransition(ctx context.Context, target, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordSweep(ctx context.Context, cancelled int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.abandonedCancelled.Add(ctx, int64(cancelled))
	m.sweepDuration.Record(ctx, durationSeconds)
}
