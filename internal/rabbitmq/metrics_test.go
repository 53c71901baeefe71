package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordPublish(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordPublish(ctx, "payment-confirmed", 0.02, true)
	metrics.RecordPublish(ctx, "payment-confirmed", 0.03, true)
	metrics.RecordPublish(ctx, "manual-order-received", 0.5, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	latency, ok := byName["notification_publish_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected a float64 histogram")
	assert.Len(t, latency.DataPoints, 2, "one series per template and status")

	failures, ok := byName["notification_publish_failures_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum")
	require.Len(t, failures.DataPoints, 1)
	template, _ := failures.DataPoints[0].Attributes.Value(attribute.Key("template"))
	assert.Equal(t, "manual-order-received", template.AsString())
	assert.Equal(t, int64(1), failures.DataPoints[0].Value)
}

func TestRecordPublishOnNilMetrics(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordPublish(context.Background(), "payment-confirmed", 0.1, false)
	})
}
