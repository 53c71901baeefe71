package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func TestInitializeMetrics(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	if metrics.ordersCreatedTotal == nil {
		t.Error("ordersCreatedTotal is nil")
	}
	if metrics.orderCreationDuration == nil {
		t.Error("orderCreationDuration is nil")
	}
	if metrics.transitionsTotal == nil {
		t.Error("transitionsTotal is nil")
	}
	if metrics.abandonedCancelled == nil {
		t.Error("abandonedCancelled is nil")
	}
	if metrics.sweepDuration == nil {
		t.Error("sweepDuration is nil")
	}
}

func TestRecordOrderCreated(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordOrderCreated(ctx, "online-gateway", "created")
	metrics.RecordOrderCreated(ctx, "online-gateway", "replayed")
	metrics.RecordOrderCreated(ctx, "manual-confirmation", "created")

	m, ok := collect(t, reader)["orders_created_total"]
	if !ok {
		t.Fatal("orders_created_total metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("Expected Sum[int64] data type")
	}
	if len(sum.DataPoints) != 3 {
		t.Errorf("Expected 3 data points, got %d", len(sum.DataPoints))
	}
}

func TestRecordTransition(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordTransition(ctx, "paid", "applied")
	metrics.RecordTransition(ctx, "paid", "noop")

	m, ok := collect(t, reader)["order_transitions_total"]
	if !ok {
		t.Fatal("order_transitions_total metric not found")
	}
	sum := m.Data.(metricdata.Sum[int64])
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("Expected 2 transitions, got %d", total)
	}
}

func TestRecordSweep(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordSweep(ctx, 4, 0.2)
	metrics.RecordSweep(ctx, 0, 0.1)

	byName := collect(t, reader)

	cancelled, ok := byName["orders_abandoned_cancelled_total"]
	if !ok {
		t.Fatal("orders_abandoned_cancelled_total metric not found")
	}
	sum := cancelled.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 4 {
		t.Errorf("Expected a single data point with value 4, got %+v", sum.DataPoints)
	}

	duration, ok := byName["abandonment_sweep_duration_seconds"]
	if !ok {
		t.Fatal("abandonment_sweep_duration_seconds metric not found")
	}
	histogram := duration.Data.(metricdata.Histogram[float64])
	if histogram.DataPoints[0].Count != 2 {
		t.Errorf("Expected 2 observations, got %d", histogram.DataPoints[0].Count)
	}
}
