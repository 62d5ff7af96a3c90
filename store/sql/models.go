package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/uptrace/bun"
)

type bookingRecord struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID                   string     `bun:"id,pk"`
	CorrelationKey       string     `bun:"correlation_key,notnull"`
	ClientID             string     `bun:"client_id,notnull"`
	BuilderID            string     `bun:"builder_id,notnull"`
	SessionTypeID        string     `bun:"session_type_id,notnull"`
	ClientEmail          string     `bun:"client_email,notnull"`
	ClientName           string     `bun:"client_name,notnull"`
	StartsAt             *time.Time `bun:"starts_at,nullzero"`
	EndsAt               *time.Time `bun:"ends_at,nullzero"`
	Status               string     `bun:"status,notnull"`
	RequiresPayment      bool       `bun:"requires_payment,notnull"`
	SchedulingRef        string     `bun:"scheduling_ref,notnull"`
	PaymentRef           string     `bun:"payment_ref,notnull"`
	CancellationReason   string     `bun:"cancellation_reason,notnull"`
	PaymentFailureReason string     `bun:"payment_failure_reason,notnull"`
	Version              int        `bun:"version,notnull"`
	CreatedAt            time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type processedEventRecord struct {
	bun.BaseModel `bun:"table:booking_processed_events,alias:bpe"`

	ID              string    `bun:"id,pk"`
	Provider        string    `bun:"provider,notnull"`
	ExternalEventID string    `bun:"external_event_id,notnull"`
	BookingID       string    `bun:"booking_id,notnull"`
	EventKind       string    `bun:"event_kind,notnull"`
	FromStatus      string    `bun:"from_status,notnull"`
	ToStatus        string    `bun:"to_status,notnull"`
	Outcome         string    `bun:"outcome,notnull"`
	Detail          string    `bun:"detail,notnull"`
	ProcessedAt     time.Time `bun:"processed_at,nullzero,notnull,default:current_timestamp"`
}

type notificationRecord struct {
	bun.BaseModel `bun:"table:booking_notification_outbox,alias:bno"`

	ID             string         `bun:"id,pk"`
	Kind           string         `bun:"kind,notnull"`
	BookingID      string         `bun:"booking_id,notnull"`
	CorrelationKey string         `bun:"correlation_key,notnull"`
	RecipientEmail string         `bun:"recipient_email,notnull"`
	RecipientName  string         `bun:"recipient_name,notnull"`
	Data           map[string]any `bun:"data,type:jsonb,notnull"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	CauseProvider  string         `bun:"cause_provider,notnull"`
	CauseEventID   string         `bun:"cause_event_id,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	LastError      string         `bun:"last_error,notnull"`
	NextAttemptAt  *time.Time     `bun:"next_attempt_at,nullzero"`
	SentAt         *time.Time     `bun:"sent_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newBookingRecord(booking core.Booking, now time.Time) *bookingRecord {
	record := &bookingRecord{
		ID:                   strings.TrimSpace(booking.ID),
		CorrelationKey:       strings.TrimSpace(booking.CorrelationKey),
		ClientID:             booking.ClientID,
		BuilderID:            booking.BuilderID,
		SessionTypeID:        booking.SessionTypeID,
		ClientEmail:          booking.ClientEmail,
		ClientName:           booking.ClientName,
		StartsAt:             timePointer(booking.StartsAt),
		EndsAt:               timePointer(booking.EndsAt),
		Status:               string(booking.Status),
		RequiresPayment:      booking.RequiresPayment,
		SchedulingRef:        booking.SchedulingRef,
		PaymentRef:           booking.PaymentRef,
		CancellationReason:   booking.CancellationReason,
		PaymentFailureReason: booking.PaymentFailureReason,
		Version:              booking.Version,
		CreatedAt:            booking.CreatedAt.UTC(),
		UpdatedAt:            booking.UpdatedAt.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	return record
}

func (r *bookingRecord) toDomain() core.Booking {
	if r == nil {
		return core.Booking{}
	}
	return core.Booking{
		ID:                   r.ID,
		CorrelationKey:       r.CorrelationKey,
		ClientID:             r.ClientID,
		BuilderID:            r.BuilderID,
		SessionTypeID:        r.SessionTypeID,
		ClientEmail:          r.ClientEmail,
		ClientName:           r.ClientName,
		StartsAt:             timeValue(r.StartsAt),
		EndsAt:               timeValue(r.EndsAt),
		Status:               core.BookingStatus(r.Status),
		RequiresPayment:      r.RequiresPayment,
		SchedulingRef:        r.SchedulingRef,
		PaymentRef:           r.PaymentRef,
		CancellationReason:   r.CancellationReason,
		PaymentFailureReason: r.PaymentFailureReason,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

func newProcessedEventRecord(entry core.ProcessedEvent, now time.Time) *processedEventRecord {
	record := &processedEventRecord{
		ID:              strings.TrimSpace(entry.ID),
		Provider:        strings.TrimSpace(entry.Provider),
		ExternalEventID: strings.TrimSpace(entry.ExternalEventID),
		BookingID:       strings.TrimSpace(entry.BookingID),
		EventKind:       string(entry.EventKind),
		FromStatus:      string(entry.FromStatus),
		ToStatus:        string(entry.ToStatus),
		Outcome:         string(entry.Outcome),
		Detail:          entry.Detail,
		ProcessedAt:     entry.ProcessedAt.UTC(),
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = now
	}
	return record
}

func (r *processedEventRecord) toDomain() core.ProcessedEvent {
	if r == nil {
		return core.ProcessedEvent{}
	}
	return core.ProcessedEvent{
		ID:              r.ID,
		Provider:        r.Provider,
		ExternalEventID: r.ExternalEventID,
		BookingID:       r.BookingID,
		EventKind:       core.EventKind(r.EventKind),
		FromStatus:      core.BookingStatus(r.FromStatus),
		ToStatus:        core.BookingStatus(r.ToStatus),
		Outcome:         core.ProcessedOutcome(r.Outcome),
		Detail:          r.Detail,
		ProcessedAt:     r.ProcessedAt.UTC(),
	}
}

func newNotificationRecord(cmd core.NotificationCommand, now time.Time) *notificationRecord {
	status := string(cmd.Status)
	if status == "" {
		status = string(core.NotificationStatusPending)
	}
	next := cmd.NextAttemptAt
	if next.IsZero() {
		next = now
	}
	record := &notificationRecord{
		ID:             strings.TrimSpace(cmd.ID),
		Kind:           string(cmd.Kind),
		BookingID:      strings.TrimSpace(cmd.BookingID),
		CorrelationKey: strings.TrimSpace(cmd.CorrelationKey),
		RecipientEmail: cmd.Recipient.Email,
		RecipientName:  cmd.Recipient.Name,
		Data:           copyAnyMap(cmd.Data),
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		CauseProvider:  cmd.CausedBy.Provider,
		CauseEventID:   cmd.CausedBy.ExternalEventID,
		Status:         status,
		Attempts:       cmd.Attempts,
		LastError:      cmd.LastError,
		NextAttemptAt:  timePointer(next),
		SentAt:         timePointer(cmd.SentAt),
		CreatedAt:      cmd.CreatedAt.UTC(),
		UpdatedAt:      now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

func (r *notificationRecord) toDomain() core.NotificationCommand {
	if r == nil {
		return core.NotificationCommand{}
	}
	return core.NotificationCommand{
		ID:             r.ID,
		Kind:           core.NotificationKind(r.Kind),
		BookingID:      r.BookingID,
		CorrelationKey: r.CorrelationKey,
		Recipient: core.Recipient{
			Email: r.RecipientEmail,
			Name:  r.RecipientName,
		},
		Data:           copyAnyMap(r.Data),
		IdempotencyKey: r.IdempotencyKey,
		CausedBy: core.EventEnvelope{
			Provider:        r.CauseProvider,
			ExternalEventID: r.CauseEventID,
			CorrelationKey:  r.CorrelationKey,
		},
		Status:        core.NotificationStatus(r.Status),
		Attempts:      r.Attempts,
		LastError:     r.LastError,
		NextAttemptAt: timeValue(r.NextAttemptAt),
		CreatedAt:     r.CreatedAt.UTC(),
		SentAt:        timeValue(r.SentAt),
	}
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeValue(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
