package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		value   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseLevel(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(slog.LevelWarn)
	if logger == nil {
		t.Fatal("NewLogger() returned nil")
	}

	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelWarn)
	ctx := context.Background()

	logger.DebugContext(ctx, "lookup started")
	logger.InfoContext(ctx, "order created")
	logger.WarnContext(ctx, "notification dispatch failed")
	logger.ErrorContext(ctx, "reconciliation failed")

	entries := decodeLines(t, buf.String())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["msg"] != "notification dispatch failed" || entries[1]["msg"] != "reconciliation failed" {
		t.Errorf("unexpected messages: %v, %v", entries[0]["msg"], entries[1]["msg"])
	}
}

func TestTraceCorrelation(t *testing.T) {
	useRecordingTracer(t)
	logger, buf := newBufferLogger(slog.LevelInfo)

	ctx, span := otel.Tracer("test").Start(context.Background(), "orders.create")
	logger.InfoContext(ctx, "order created", "order_id", "order-1")
	span.End()

	logger.InfoContext(context.Background(), "sweep finished")

	entries := decodeLines(t, buf.String())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	withSpan := entries[0]
	if withSpan["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), withSpan["trace_id"])
	}
	if withSpan["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("expected span_id %s, got %v", span.SpanContext().SpanID(), withSpan["span_id"])
	}
	if withSpan["order_id"] != "order-1" {
		t.Errorf("expected order_id order-1, got %v", withSpan["order_id"])
	}

	withoutSpan := entries[1]
	if _, ok := withoutSpan["trace_id"]; ok {
		t.Error("expected no trace_id without a span")
	}
	if _, ok := withoutSpan["span_id"]; ok {
		t.Error("expected no span_id without a span")
	}
}

func TestAttributesAndGroups(t *testing.T) {
	useRecordingTracer(t)
	base, buf := newBufferLogger(slog.LevelInfo)

	logger := base.With("component", "webhook").WithGroup("event").With("id", "evt-1").WithGroup("payment")

	ctx, span := otel.Tracer("test").Start(context.Background(), "webhook.process")
	defer span.End()
	logger.InfoContext(ctx, "payment event received", "status", "approved")

	entries := decodeLines(t, buf.String())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]

	if entry["component"] != "webhook" {
		t.Errorf("expected component webhook, got %v", entry["component"])
	}
	if id, _ := entry["trace_id"].(string); id == "" {
		t.Error("expected a top-level trace_id")
	}

	event, ok := entry["event"].(map[string]any)
	if !ok {
		t.Fatalf("expected an event group, got %v", entry)
	}
	if event["id"] != "evt-1" {
		t.Errorf("expected event id evt-1, got %v", event["id"])
	}

	payment, ok := event["payment"].(map[string]any)
	if !ok {
		t.Fatalf("expected a nested payment group, got %v", event)
	}
	if payment["status"] != "approved" {
		t.Errorf("expected status approved, got %v", payment["status"])
	}
}

func TestHandlerDerivationDoesNotLeak(t *testing.T) {
	base, buf := newBufferLogger(slog.LevelInfo)

	orders := base.With("component", "orders")
	sweeper := base.With("component", "sweeper")

	orders.Info("order created")
	sweeper.Info("sweep finished")

	entries := decodeLines(t, buf.String())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["component"] != "orders" || entries[1]["component"] != "sweeper" {
		t.Errorf("attributes leaked between derived loggers: %v", entries)
	}
}
