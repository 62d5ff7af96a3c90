package bookings

import (
	"fmt"

	bookingcommand "github.com/goliatone/go-bookings/command"
	"github.com/goliatone/go-bookings/core"
	bookingquery "github.com/goliatone/go-bookings/query"
)

type CommandQueryService interface {
	bookingcommand.MutatingService
	core.BookingReader
}

type Commands struct {
	ReconcileEvent        *bookingcommand.ReconcileEventCommand
	DispatchNotifications *bookingcommand.DispatchNotificationsCommand
	PruneLedger           *bookingcommand.PruneLedgerCommand
}

type Queries struct {
	GetBooking        *bookingquery.GetBookingQuery
	ListBookings      *bookingquery.ListBookingsQuery
	ListBookingEvents *bookingquery.ListBookingEventsQuery
}

type Facade struct {
	service  CommandQueryService
	reader   core.BookingReader
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	reader core.BookingReader
}

// WithBookingReader routes the read queries through reader instead of the
// service, typically a cached reader in front of the booking store.
func WithBookingReader(reader core.BookingReader) FacadeOption {
	return func(options *facadeOptions) {
		options.reader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("bookings: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.reader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service, reader: reader}
	facade.commands = Commands{
		ReconcileEvent:        bookingcommand.NewReconcileEventCommand(service),
		DispatchNotifications: bookingcommand.NewDispatchNotificationsCommand(service),
		PruneLedger:           bookingcommand.NewPruneLedgerCommand(service),
	}
	facade.queries = Queries{
		GetBooking:        bookingquery.NewGetBookingQuery(reader),
		ListBookings:      bookingquery.NewListBookingsQuery(reader),
		ListBookingEvents: bookingquery.NewListBookingEventsQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Reader() core.BookingReader {
	if f == nil {
		return nil
	}
	return f.reader
}
