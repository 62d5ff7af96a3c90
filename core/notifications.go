package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type NotificationKind string

const (
	NotificationBookingConfirmation  NotificationKind = "SendBookingConfirmation"
	NotificationBookingCancellation  NotificationKind = "SendBookingCancellation"
	NotificationPaymentFailureNotice NotificationKind = "SendPaymentFailureNotice"
)

type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "pending"
	NotificationStatusProcessing NotificationStatus = "processing"
	NotificationStatusSent       NotificationStatus = "sent"
	NotificationStatusFailed     NotificationStatus = "failed"
)

type Recipient struct {
	Email string
	Name  string
}

// NotificationCommand asks the external dispatcher to deliver one templated message.
type NotificationCommand struct {
	ID             string
	Kind           NotificationKind
	BookingID      string
	CorrelationKey string
	Recipient      Recipient
	Data           map[string]any
	IdempotencyKey string
	CausedBy       EventEnvelope
	Status         NotificationStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
	CreatedAt      time.Time
	SentAt         time.Time
}

// NotificationIdempotencyKey is stable per booking and command kind. Every kind
// maps to a single reachable transition per booking, so the key doubles as the
// per-transition uniqueness guard.
func NotificationIdempotencyKey(bookingID string, kind NotificationKind) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(bookingID) + "|" + string(kind)))
	return hex.EncodeToString(sum[:])
}

func newNotificationCommand(id string, kind NotificationKind, booking Booking, cause EventEnvelope, now time.Time) NotificationCommand {
	data := map[string]any{
		"booking_id":      booking.ID,
		"builder_id":      booking.BuilderID,
		"client_id":       booking.ClientID,
		"session_type_id": booking.SessionTypeID,
		"status":          string(booking.Status),
	}
	if !booking.StartsAt.IsZero() {
		data["starts_at"] = booking.StartsAt.UTC().Format(time.RFC3339)
	}
	if !booking.EndsAt.IsZero() {
		data["ends_at"] = booking.EndsAt.UTC().Format(time.RFC3339)
	}
	switch kind {
	case NotificationBookingCancellation:
		if booking.CancellationReason != "" {
			data["reason"] = booking.CancellationReason
		}
	case NotificationPaymentFailureNotice:
		if booking.PaymentFailureReason != "" {
			data["reason"] = booking.PaymentFailureReason
		}
	case NotificationBookingConfirmation:
		if booking.PaymentRef != "" {
			data["payment_ref"] = booking.PaymentRef
		}
	}
	return NotificationCommand{
		ID:             id,
		Kind:           kind,
		BookingID:      booking.ID,
		CorrelationKey: booking.CorrelationKey,
		Recipient: Recipient{
			Email: booking.ClientEmail,
			Name:  booking.ClientName,
		},
		Data:           data,
		IdempotencyKey: NotificationIdempotencyKey(booking.ID, kind),
		CausedBy:       cause,
		Status:         NotificationStatusPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}
}
