package gateway

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	callLatency metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.callLatency, err = meter.Float64Histogram(
		"payment_provider_call_duration_seconds",
		metric.WithDescription("Payment provider call latency by operation and outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_provider_call_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCall(ctx context.Context, operation string, durationSeconds float64, outcome string) {
	m.callLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
