package rabbitmq

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	publishLatency metric.Float64Histogram
	publishFailed  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.publishLatency, err = meter.Float64Histogram(
		"notification_publish_latency_seconds",
		metric.WithDescription("Time to hand a notification to the broker"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification_publish_latency histogram: %w", err)
	}

	m.publishFailed, err = meter.Int64Counter(
		"notification_publish_failures_total",
		metric.WithDescription("Notifications the broker did not accept"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification_publish_failures counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordPublish(ctx context.Context, template string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
		m.publishFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("template", template)))
	}
	m.publishLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("status", status),
	))
}
