package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypePaymentCreated = "payment.created"
	TypePaymentUpdated = "payment.updated"
)

// Event is one of PaymentEvent or IgnoredEvent.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

// PaymentEvent announces that a provider payment was created or changed.
// The payload only names the payment; its state is fetched from the provider.
type PaymentEvent struct {
	ID        string
	Type      string
	PaymentID string
}

func (e PaymentEvent) EventID() string   { return e.ID }
func (e PaymentEvent) EventType() string { return e.Type }
func (PaymentEvent) isEvent()            {}

// IgnoredEvent is any well-formed event this service does not act on.
type IgnoredEvent struct {
	ID   string
	Type string
}

func (e IgnoredEvent) EventID() string   { return e.ID }
func (e IgnoredEvent) EventType() string { return e.Type }
func (IgnoredEvent) isEvent()            {}

type envelope struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseEvent decodes a verified body. id is the verified webhook id.
func ParseEvent(id string, body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType := strings.TrimSpace(env.Action)
	if eventType == "" {
		eventType = strings.TrimSpace(env.Type)
	}
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	switch eventType {
	case TypePaymentCreated, TypePaymentUpdated:
		paymentID, err := subjectID(env.Data.ID)
		if err != nil {
			return nil, err
		}
		return PaymentEvent{ID: id, Type: eventType, PaymentID: paymentID}, nil
	default:
		return IgnoredEvent{ID: id, Type: eventType}, nil
	}
}

// subjectID accepts the payment id as a JSON string or number.
func subjectID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: missing data.id", ErrMalformedPayload)
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return "", fmt.Errorf("%w: empty data.id", ErrMalformedPayload)
		}
		return asString, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return "", fmt.Errorf("%w: data.id is neither string nor number", ErrMalformedPayload)
	}
	return asNumber.String(), nil
}
