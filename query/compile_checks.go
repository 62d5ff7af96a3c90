package query

import (
	"github.com/goliatone/go-bookings/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetBookingMessage, core.Booking]                 = (*GetBookingQuery)(nil)
	_ gocmd.Querier[ListBookingsMessage, core.BookingPage]           = (*ListBookingsQuery)(nil)
	_ gocmd.Querier[ListBookingEventsMessage, []core.ProcessedEvent] = (*ListBookingEventsQuery)(nil)
	_ core.BookingReader                                             = (*core.Service)(nil)
)
