package core

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	// BookingStatusNone is the state of a correlation key that has no booking yet.
	BookingStatusNone          BookingStatus = ""
	BookingStatusPending       BookingStatus = "PENDING"
	BookingStatusConfirmed     BookingStatus = "CONFIRMED"
	BookingStatusCancelled     BookingStatus = "CANCELLED"
	BookingStatusPaymentFailed BookingStatus = "PAYMENT_FAILED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusPaymentFailed:
		return true
	default:
		return false
	}
}

func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled
}

func ParseBookingStatus(value string) (BookingStatus, error) {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return BookingStatusNone, fmt.Errorf("core: invalid booking status %q", value)
	}
	return status, nil
}

type Booking struct {
	ID                   string
	CorrelationKey       string
	ClientID             string
	BuilderID            string
	SessionTypeID        string
	ClientEmail          string
	ClientName           string
	StartsAt             time.Time
	EndsAt               time.Time
	Status               BookingStatus
	RequiresPayment      bool
	SchedulingRef        string
	PaymentRef           string
	CancellationReason   string
	PaymentFailureReason string
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (b Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("core: booking id is required")
	}
	if strings.TrimSpace(b.CorrelationKey) == "" {
		return fmt.Errorf("core: booking correlation key is required")
	}
	if !b.Status.Valid() {
		return fmt.Errorf("core: invalid booking status %q", b.Status)
	}
	if !b.StartsAt.IsZero() && !b.EndsAt.IsZero() && b.EndsAt.Before(b.StartsAt) {
		return fmt.Errorf("core: booking end time precedes start time")
	}
	return nil
}

// BookingFilter narrows booking list reads. Zero values match everything.
type BookingFilter struct {
	CorrelationKey string
	ClientID       string
	BuilderID      string
	Status         BookingStatus
	Page           int
	PerPage        int
}

const (
	DefaultBookingPageSize = 20
	MaxBookingPageSize     = 100
)

// Normalized clamps paging to sane bounds.
func (f BookingFilter) Normalized() BookingFilter {
	f.CorrelationKey = strings.TrimSpace(f.CorrelationKey)
	f.ClientID = strings.TrimSpace(f.ClientID)
	f.BuilderID = strings.TrimSpace(f.BuilderID)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultBookingPageSize
	}
	if f.PerPage > MaxBookingPageSize {
		f.PerPage = MaxBookingPageSize
	}
	return f
}

func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type BookingPage struct {
	Items   []Booking
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type ProcessedOutcome string

const (
	OutcomeCreated  ProcessedOutcome = "created"
	OutcomeApplied  ProcessedOutcome = "applied"
	OutcomeRebooked ProcessedOutcome = "rebooked"
	OutcomeNoop     ProcessedOutcome = "noop"
)

// ProcessedEvent is one ledger entry. Provider plus ExternalEventID is unique.
type ProcessedEvent struct {
	ID              string
	Provider        string
	ExternalEventID string
	BookingID       string
	EventKind       EventKind
	FromStatus      BookingStatus
	ToStatus        BookingStatus
	Outcome         ProcessedOutcome
	Detail          string
	ProcessedAt     time.Time
}

func (e ProcessedEvent) Validate() error {
	if strings.TrimSpace(e.Provider) == "" {
		return fmt.Errorf("core: processed event provider is required")
	}
	if strings.TrimSpace(e.ExternalEventID) == "" {
		return fmt.Errorf("core: processed event external id is required")
	}
	return nil
}
