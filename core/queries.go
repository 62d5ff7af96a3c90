package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Service) GetBooking(ctx context.Context, id string) (booking Booking, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "get_booking", err, map[string]any{"booking_id": id})
	}()
	if s == nil || s.bookingStore == nil {
		return Booking{}, fmt.Errorf("core: booking store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Booking{}, NewBadInputError("core: booking id is required", nil)
	}
	return s.bookingStore.Get(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, filter BookingFilter) (page BookingPage, err error) {
	startedAt := time.Now().UTC()
	filter = filter.Normalized()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_bookings", err, map[string]any{
			"correlation_key": filter.CorrelationKey,
			"status":          string(filter.Status),
			"page":            filter.Page,
			"total":           page.Total,
		})
	}()
	if s == nil || s.bookingStore == nil {
		return BookingPage{}, fmt.Errorf("core: booking store is not configured")
	}
	if filter.Status != BookingStatusNone && !filter.Status.Valid() {
		return BookingPage{}, NewBadInputError(fmt.Sprintf("core: invalid booking status %q", filter.Status), nil)
	}
	return s.bookingStore.List(ctx, filter)
}

// ListBookingEvents returns the ledger entries attributed to a booking, oldest first.
func (s *Service) ListBookingEvents(ctx context.Context, bookingID string) (events []ProcessedEvent, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_booking_events", err, map[string]any{
			"booking_id": bookingID,
			"count":      len(events),
		})
	}()
	if s == nil || s.ledgerStore == nil || s.bookingStore == nil {
		return nil, fmt.Errorf("core: reconciliation store is not configured")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, NewBadInputError("core: booking id is required", nil)
	}
	if _, err := s.bookingStore.Get(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.ledgerStore.ListForBooking(ctx, bookingID)
}
