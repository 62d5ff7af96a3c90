package transport

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

// NotificationPayload is the wire shape every sender publishes. The external
// dispatcher deduplicates on IdempotencyKey.
type NotificationPayload struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	BookingID      string         `json:"booking_id"`
	CorrelationKey string         `json:"correlation_key"`
	Recipient      RecipientWire  `json:"recipient"`
	Data           map[string]any `json:"data,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	CausedBy       CauseWire      `json:"caused_by"`
	Attempt        int            `json:"attempt"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
}

type RecipientWire struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type CauseWire struct {
	Provider        string `json:"provider"`
	ExternalEventID string `json:"external_event_id"`
}

func NewNotificationPayload(cmd core.NotificationCommand) NotificationPayload {
	payload := NotificationPayload{
		ID:             strings.TrimSpace(cmd.ID),
		Kind:           string(cmd.Kind),
		BookingID:      strings.TrimSpace(cmd.BookingID),
		CorrelationKey: strings.TrimSpace(cmd.CorrelationKey),
		Recipient:      RecipientWire{Email: cmd.Recipient.Email, Name: cmd.Recipient.Name},
		Data:           cmd.Data,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		CausedBy: CauseWire{
			Provider:        cmd.CausedBy.Provider,
			ExternalEventID: cmd.CausedBy.ExternalEventID,
		},
		Attempt: cmd.Attempts,
	}
	if !cmd.CreatedAt.IsZero() {
		created := cmd.CreatedAt.UTC()
		payload.CreatedAt = &created
	}
	return payload
}

// RoutingKey is the topic the command is published under, for example
// "booking.notification.send_booking_confirmation".
func RoutingKey(kind core.NotificationKind) string {
	return "booking.notification." + snakeCase(string(kind))
}

func encodePayload(cmd core.NotificationCommand) ([]byte, error) {
	return json.Marshal(NewNotificationPayload(cmd))
}

func snakeCase(in string) string {
	in = strings.TrimSpace(in)
	var b strings.Builder
	for i, r := range in {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
