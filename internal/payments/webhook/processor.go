package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Processor verifies, parses and reconciles one webhook delivery.
type Processor struct {
	verifier   *Verifier
	reconciler *Reconciler
	events     ports.EventLog
	metrics    *Metrics
	logger     *slog.Logger
}

func NewProcessor(verifier *Verifier, reconciler *Reconciler, events ports.EventLog, metrics *Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		verifier:   verifier,
		reconciler: reconciler,
		events:     events,
		metrics:    metrics,
		logger:     logger,
	}
}

// Process handles a raw delivery. The signature is checked before the body
// is parsed or any order is read. Events already recorded in the event log
// are acknowledged with OutcomeDuplicate.
func (p *Processor) Process(ctx context.Context, header http.Header, body []byte) (outcome Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "webhook.Process")
	defer span.End()

	start := time.Now()
	eventType := "unknown"
	defer func() {
		label := string(outcome)
		if err != nil {
			label = errorLabel(err)
			telemetry.RecordSpanError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
		telemetry.AddSpanAttributes(span,
			attribute.String("webhook.event_type", eventType),
			attribute.String("webhook.outcome", label),
		)
		if p.metrics != nil {
			p.metrics.RecordEvent(ctx, eventType, label, time.Since(start).Seconds())
		}
	}()

	eventID, err := p.verifier.Verify(header, body)
	if err != nil {
		p.logger.WarnContext(ctx, "rejected webhook delivery", "error", err)
		return "", err
	}

	event, err := ParseEvent(eventID, body)
	if err != nil {
		p.logger.WarnContext(ctx, "malformed webhook payload", "event_id", eventID, "error", err)
		return "", err
	}
	eventType = event.EventType()
	logger := p.logger.With("event_id", eventID, "event_type", eventType)

	if p.events != nil {
		seen, err := p.events.Seen(ctx, eventID)
		if err != nil {
			return "", fmt.Errorf("check event log: %w", err)
		}
		if seen {
			logger.InfoContext(ctx, "webhook event already processed")
			return OutcomeDuplicate, nil
		}
	}

	record := ports.ProcessedEvent{EventID: eventID, EventType: eventType}
	switch e := event.(type) {
	case PaymentEvent:
		result, err := p.reconciler.ReconcilePayment(ctx, e.PaymentID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to reconcile payment", "payment_id", e.PaymentID, "error", err)
			return "", err
		}
		outcome = result.Outcome
		if result.Order != nil {
			record.OrderID = result.Order.ID
		}
	case IgnoredEvent:
		logger.InfoContext(ctx, "ignoring webhook event")
		outcome = OutcomeIgnored
	}

	record.Outcome = string(outcome)
	if p.events != nil {
		if err := p.events.MarkProcessed(ctx, record); err != nil {
			// The event was applied; a redelivery is a harmless no-op.
			logger.WarnContext(ctx, "failed to record processed event", "error", err)
		}
	}

	return outcome, nil
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	default:
		return "error"
	}
}
