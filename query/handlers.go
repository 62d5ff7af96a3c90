package query

import (
	"context"

	"github.com/goliatone/go-bookings/core"
)

type GetBookingQuery struct {
	reader core.BookingReader
}

func NewGetBookingQuery(reader core.BookingReader) *GetBookingQuery {
	return &GetBookingQuery{reader: reader}
}

func (q *GetBookingQuery) Query(ctx context.Context, msg GetBookingMessage) (core.Booking, error) {
	if q == nil || q.reader == nil {
		return core.Booking{}, queryDependencyError("query: booking reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Booking{}, err
	}
	return q.reader.GetBooking(ctx, msg.BookingID)
}

type ListBookingsQuery struct {
	reader core.BookingReader
}

func NewListBookingsQuery(reader core.BookingReader) *ListBookingsQuery {
	return &ListBookingsQuery{reader: reader}
}

func (q *ListBookingsQuery) Query(ctx context.Context, msg ListBookingsMessage) (core.BookingPage, error) {
	if q == nil || q.reader == nil {
		return core.BookingPage{}, queryDependencyError("query: booking reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.BookingPage{}, err
	}
	return q.reader.ListBookings(ctx, msg.Filter)
}

type ListBookingEventsQuery struct {
	reader core.BookingReader
}

func NewListBookingEventsQuery(reader core.BookingReader) *ListBookingEventsQuery {
	return &ListBookingEventsQuery{reader: reader}
}

func (q *ListBookingEventsQuery) Query(ctx context.Context, msg ListBookingEventsMessage) ([]core.ProcessedEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: booking reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListBookingEvents(ctx, msg.BookingID)
}
