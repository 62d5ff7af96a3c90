package inbound

import (
	"time"

	"github.com/goliatone/go-bookings/core"
)

type bookingResponse struct {
	ID                   string     `json:"id"`
	CorrelationKey       string     `json:"correlation_key"`
	Status               string     `json:"status"`
	ClientID             string     `json:"client_id,omitempty"`
	BuilderID            string     `json:"builder_id,omitempty"`
	SessionTypeID        string     `json:"session_type_id,omitempty"`
	ClientEmail          string     `json:"client_email,omitempty"`
	ClientName           string     `json:"client_name,omitempty"`
	StartsAt             *time.Time `json:"starts_at,omitempty"`
	EndsAt               *time.Time `json:"ends_at,omitempty"`
	RequiresPayment      bool       `json:"requires_payment"`
	SchedulingRef        string     `json:"scheduling_ref,omitempty"`
	PaymentRef           string     `json:"payment_ref,omitempty"`
	CancellationReason   string     `json:"cancellation_reason,omitempty"`
	PaymentFailureReason string     `json:"payment_failure_reason,omitempty"`
	Version              int        `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func newBookingResponse(b core.Booking) bookingResponse {
	return bookingResponse{
		ID:                   b.ID,
		CorrelationKey:       b.CorrelationKey,
		Status:               string(b.Status),
		ClientID:             b.ClientID,
		BuilderID:            b.BuilderID,
		SessionTypeID:        b.SessionTypeID,
		ClientEmail:          b.ClientEmail,
		ClientName:           b.ClientName,
		StartsAt:             optionalTime(b.StartsAt),
		EndsAt:               optionalTime(b.EndsAt),
		RequiresPayment:      b.RequiresPayment,
		SchedulingRef:        b.SchedulingRef,
		PaymentRef:           b.PaymentRef,
		CancellationReason:   b.CancellationReason,
		PaymentFailureReason: b.PaymentFailureReason,
		Version:              b.Version,
		CreatedAt:            b.CreatedAt.UTC(),
		UpdatedAt:            b.UpdatedAt.UTC(),
	}
}

type processedEventResponse struct {
	Provider        string    `json:"provider"`
	ExternalEventID string    `json:"external_event_id"`
	EventKind       string    `json:"event_kind"`
	FromStatus      string    `json:"from_status,omitempty"`
	ToStatus        string    `json:"to_status,omitempty"`
	Outcome         string    `json:"outcome"`
	Detail          string    `json:"detail,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}

func newProcessedEventResponse(e core.ProcessedEvent) processedEventResponse {
	return processedEventResponse{
		Provider:        e.Provider,
		ExternalEventID: e.ExternalEventID,
		EventKind:       string(e.EventKind),
		FromStatus:      string(e.FromStatus),
		ToStatus:        string(e.ToStatus),
		Outcome:         string(e.Outcome),
		Detail:          e.Detail,
		ProcessedAt:     e.ProcessedAt.UTC(),
	}
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
