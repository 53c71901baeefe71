// Package gateway is the HTTP client for the payment provider: payment
// preferences, payment lookups and the OAuth token endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/payments"
	"golang.org/x/time/rate"
)

const maxErrorBody = 2048

// Config describes how to reach the provider.
type Config struct {
	BaseURL         string
	AuthURL         string
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	NotificationURL string
	BackURL         string
	Currency        string
	Timeout         time.Duration
	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// ProviderError carries the provider's answer for a failed call. It wraps
// ErrProviderRejected for 4xx answers and ErrProviderUnavailable otherwise.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
	kind       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider answered %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.kind
}

// transport performs JSON calls with a per-call deadline, the outbound rate
// limit and the error taxonomy shared by every operation.
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

func newTransport(cfg Config, httpClient *http.Client, metrics *Metrics, logger *slog.Logger) *transport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &transport{
		client:  httpClient,
		limiter: limiter,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

type request struct {
	operation string
	method    string
	url       string
	token     string
	json      any
	form      url.Values
}

func (t *transport) do(ctx context.Context, req request, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if t.metrics != nil {
			t.metrics.RecordCall(ctx, req.operation, time.Since(start).Seconds(), outcome(err))
		}
		if err != nil {
			t.logger.WarnContext(ctx, "payment provider call failed",
				"operation", req.operation,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
		}
	}()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return classifyTransportError(req.operation, ctx.Err())
			}
			return fmt.Errorf("%s: %w: %v", req.operation, payments.ErrProviderTimeout, err)
		}
	}

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", req.operation, err)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(req.operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind := payments.ErrProviderRejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = payments.ErrProviderUnavailable
		}
		return &ProviderError{
			Operation:  req.operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			kind:       kind,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyTransportError(req.operation, ctx.Err())
		}
		return fmt.Errorf("%s: decode response: %w: %v", req.operation, payments.ErrProviderUnavailable, err)
	}
	return nil
}

func (t *transport) newRequest(ctx context.Context, req request) (*http.Request, error) {
	var body io.Reader
	contentType := ""
	switch {
	case req.json != nil:
		payload, err := json.Marshal(req.json)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	return httpReq, nil
}

func classifyTransportError(operation string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %v", operation, payments.ErrProviderTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return fmt.Errorf("%s: %w: %v", operation, payments.ErrProviderUnavailable, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, payments.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, payments.ErrProviderRejected):
		return "rejected"
	default:
		return "unavailable"
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
