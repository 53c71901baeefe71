package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/app"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusCreated, "2xx"},
		{http.StatusConflict, "4xx"},
		{http.StatusServiceUnavailable, "5xx"},
	}

	for _, tt := range tests {
		if got := statusClass(tt.code); got != tt.want {
			t.Errorf("statusClass(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewService(app.Dependencies{Repo: memory.NewRepository(), Logger: logger})
	auth := NewAuthenticator("jwt-key", "")
	router := NewRouter(RouterConfig{
		Handler: NewHandler(service, nil, nil, nil, logger),
		Auth:    auth,
		Health:  func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		Metrics: metrics,
		Logger:  logger,
	})

	token, err := auth.Issue(Actor{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	for _, path := range []string{"/v1/orders/a", "/v1/orders/b", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	routes := map[string]int64{}
	var inFlight int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			switch m.Name {
			case "http_requests_total":
				if !ok {
					t.Fatal("expected Sum[int64] for http_requests_total")
				}
				for _, dp := range sum.DataPoints {
					route, _ := dp.Attributes.Value(attribute.Key("route"))
					routes[route.AsString()] += dp.Value
				}
			case "http_requests_in_flight":
				if !ok {
					t.Fatal("expected Sum[int64] for http_requests_in_flight")
				}
				inFlight = 0
				for _, dp := range sum.DataPoints {
					inFlight += dp.Value
				}
			}
		}
	}

	if routes["/v1/orders/{id}"] != 2 {
		t.Errorf("expected lookups of different orders to share one series, got %v", routes)
	}
	if routes["/healthz"] != 1 {
		t.Errorf("expected 1 health request, got %d", routes["/healthz"])
	}
	if inFlight != 0 {
		t.Errorf("expected no requests in flight, got %d", inFlight)
	}
}

func TestMetricsOnNilReceiver(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("nil metrics panicked: %v", r)
		}
	}()

	var metrics *Metrics
	metrics.RequestStarted(context.Background())
	metrics.RequestFinished(context.Background(), http.MethodGet, "/healthz", http.StatusOK, 0.01)
}
