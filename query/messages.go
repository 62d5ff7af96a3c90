package query

import (
	"strings"

	"github.com/goliatone/go-bookings/core"
)

const (
	TypeGetBooking        = "bookings.query.booking.get"
	TypeListBookings      = "bookings.query.booking.list"
	TypeListBookingEvents = "bookings.query.booking.events"
)

type GetBookingMessage struct {
	BookingID string
}

func (GetBookingMessage) Type() string { return TypeGetBooking }

func (m GetBookingMessage) Validate() error {
	if strings.TrimSpace(m.BookingID) == "" {
		return queryValidationError("booking_id", "booking id is required")
	}
	return nil
}

type ListBookingsMessage struct {
	Filter core.BookingFilter
}

func (ListBookingsMessage) Type() string { return TypeListBookings }

func (m ListBookingsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.Status != core.BookingStatusNone && !m.Filter.Status.Valid() {
		return queryValidationError("status", "status is not a booking status")
	}
	return nil
}

// ListBookingEventsMessage asks for the processed-event history of one booking.
type ListBookingEventsMessage struct {
	BookingID string
}

func (ListBookingEventsMessage) Type() string { return TypeListBookingEvents }

func (m ListBookingEventsMessage) Validate() error {
	if strings.TrimSpace(m.BookingID) == "" {
		return queryValidationError("booking_id", "booking id is required")
	}
	return nil
}
