package webhook

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	eventsTotal        metric.Int64Counter
	processingDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.eventsTotal, err = meter.Int64Counter(
		"payment_webhook_events_total",
		metric.WithDescription("Payment provider webhook deliveries by event type and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_webhook_events_total counter: %w", err)
	}

	m.processingDuration, err = meter.Float64Histogram(
		"payment_webhook_processing_duration_seconds",
		metric.WithDescription("Duration of webhook verification and reconciliation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_webhook_processing_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordEvent(ctx context.Context, eventType, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	)
	m.eventsTotal.Add(ctx, 1, attrs)
	m.processingDuration.Record(ctx, durationSeconds, attrs)
}
