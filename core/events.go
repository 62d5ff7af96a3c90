package core

import (
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventKindSessionBooked    EventKind = "session_booked"
	EventKindSessionCanceled  EventKind = "session_canceled"
	EventKindPaymentSucceeded EventKind = "payment_succeeded"
	EventKindPaymentFailed    EventKind = "payment_failed"
	EventKindIgnored          EventKind = "ignored"
)

// Event is the closed set of normalized provider events. Only the variants
// declared in this package implement it.
type Event interface {
	Kind() EventKind
	Envelope() EventEnvelope
	isEvent()
}

// EventEnvelope carries the identity shared by every variant.
type EventEnvelope struct {
	Provider        string
	ExternalEventID string
	CorrelationKey  string
	// OccurredAt is the provider timestamp. It is advisory and never used for ordering.
	OccurredAt time.Time
}

func (e EventEnvelope) Envelope() EventEnvelope { return e }

func (EventEnvelope) isEvent() {}

type SessionBooked struct {
	EventEnvelope
	SchedulingRef   string
	ClientID        string
	BuilderID       string
	SessionTypeID   string
	ClientEmail     string
	ClientName      string
	StartsAt        time.Time
	EndsAt          time.Time
	RequiresPayment bool
}

func (SessionBooked) Kind() EventKind { return EventKindSessionBooked }

type SessionCanceled struct {
	EventEnvelope
	SchedulingRef string
	Reason        string
}

func (SessionCanceled) Kind() EventKind { return EventKindSessionCanceled }

type PaymentSucceeded struct {
	EventEnvelope
	PaymentRef  string
	AmountMinor int64
	Currency    string
}

func (PaymentSucceeded) Kind() EventKind { return EventKindPaymentSucceeded }

type PaymentFailed struct {
	EventEnvelope
	PaymentRef    string
	FailureReason string
}

func (PaymentFailed) Kind() EventKind { return EventKindPaymentFailed }

// Ignored is an event type the core does not act on. It is acknowledged, not rejected.
type Ignored struct {
	EventEnvelope
	RawType string
}

func (Ignored) Kind() EventKind { return EventKindIgnored }

// ValidateEvent checks the envelope contract every actionable variant must
// meet. Ignored events only need a provider.
func ValidateEvent(event Event) error {
	if event == nil {
		return NewBadInputError("core: event is required", nil)
	}
	envelope := event.Envelope()
	if strings.TrimSpace(envelope.Provider) == "" {
		return NewBadInputError("core: event provider is required", nil)
	}
	if event.Kind() == EventKindIgnored {
		return nil
	}
	if strings.TrimSpace(envelope.ExternalEventID) == "" {
		return NewBadInputError("core: event external id is required", map[string]any{
			"provider_id": envelope.Provider,
		})
	}
	if strings.TrimSpace(envelope.CorrelationKey) == "" {
		return NewNormalizationError(
			fmt.Sprintf("core: %s event is missing the booking correlation key", event.Kind()),
			map[string]any{
				"provider_id": envelope.Provider,
				"event_id":    envelope.ExternalEventID,
			},
		)
	}
	return nil
}

var (
	_ Event = SessionBooked{}
	_ Event = SessionCanceled{}
	_ Event = PaymentSucceeded{}
	_ Event = PaymentFailed{}
	_ Event = Ignored{}
)
