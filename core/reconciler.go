package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reconcile applies one normalized provider event to the booking it
// correlates to. The ledger check, booking write, ledger write and any
// notification command commit in a single unit of work bounded by the
// configured processing budget. Duplicates and absorbed events succeed
// without side effects.
func (s *Service) Reconcile(ctx context.Context, event Event) (result ReconcileResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	if event != nil {
		envelope := event.Envelope()
		fields["provider_id"] = envelope.Provider
		fields["event_id"] = envelope.ExternalEventID
		fields["event_kind"] = string(event.Kind())
		fields["correlation_key"] = envelope.CorrelationKey
	}
	defer func() {
		if result.BookingID != "" {
			fields["booking_id"] = result.BookingID
		}
		if result.Outcome != "" {
			fields["outcome"] = string(result.Outcome)
		}
		if result.Duplicate {
			fields["duplicate"] = true
		}
		s.observeOperation(ctx, startedAt, "reconcile_event", err, fields)
	}()

	if s == nil {
		return ReconcileResult{}, fmt.Errorf("core: service is nil")
	}
	if err := ValidateEvent(event); err != nil {
		return ReconcileResult{}, err
	}
	if ignored, ok := event.(Ignored); ok {
		return ReconcileResult{
			Outcome: OutcomeNoop,
			Ignored: true,
			Detail:  "ignored event type " + ignored.RawType,
		}, nil
	}
	if s.unitOfWork == nil {
		return ReconcileResult{}, fmt.Errorf("core: unit of work is not configured")
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.config.processingBudget())
	defer cancel()

	var outcome ReconcileResult
	txErr := s.unitOfWork.WithinTx(budgetCtx, func(txCtx context.Context, stores TxStores) error {
		outcome = ReconcileResult{}
		applied, applyErr := s.reconcileInTx(txCtx, stores, event)
		if applyErr != nil {
			return applyErr
		}
		outcome = applied
		return nil
	})
	if txErr != nil {
		switch {
		case IsDuplicateKeyError(txErr):
			// Lost the insert race against a concurrent delivery of the same event.
			return ReconcileResult{Outcome: OutcomeNoop, Duplicate: true, Detail: "already processed"}, nil
		case errors.Is(txErr, context.DeadlineExceeded) || errors.Is(budgetCtx.Err(), context.DeadlineExceeded):
			return ReconcileResult{}, NewProcessingTimeoutError(txErr, map[string]any{
				"provider_id": event.Envelope().Provider,
				"event_id":    event.Envelope().ExternalEventID,
				"budget":      s.config.processingBudget().String(),
			})
		default:
			return ReconcileResult{}, txErr
		}
	}

	s.noteAbsorbed(ctx, event, outcome)
	return outcome, nil
}

func (s *Service) reconcileInTx(ctx context.Context, stores TxStores, event Event) (ReconcileResult, error) {
	if stores.Bookings == nil || stores.Ledger == nil || stores.Outbox == nil {
		return ReconcileResult{}, fmt.Errorf("core: transaction stores are not configured")
	}
	envelope := event.Envelope()

	processed, err := stores.Ledger.HasProcessed(ctx, envelope.Provider, envelope.ExternalEventID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if processed {
		return ReconcileResult{Outcome: OutcomeNoop, Duplicate: true, Detail: "already processed"}, nil
	}

	current, exists, err := loadCurrentBooking(ctx, stores.Bookings, envelope.CorrelationKey)
	if err != nil {
		return ReconcileResult{}, err
	}

	state := BookingStatusNone
	rebooked := false
	if exists {
		state = current.Status
		if booked, ok := event.(SessionBooked); ok && isRebooking(current, booked) {
			state = BookingStatusNone
			rebooked = true
		}
	}
	if !exists && event.Kind() != EventKindSessionBooked {
		return ReconcileResult{}, NewBookingNotFoundError(
			fmt.Sprintf("core: no booking for correlation key %q", envelope.CorrelationKey),
			map[string]any{
				"provider_id":     envelope.Provider,
				"event_id":        envelope.ExternalEventID,
				"event_kind":      string(event.Kind()),
				"correlation_key": envelope.CorrelationKey,
			},
		)
	}

	now := s.now()
	transition := Transition(state, event)
	var (
		write   bookingWrite
		pending Booking
	)
	switch {
	case state == BookingStatusNone:
		write = bookingCreate
		pending = newBookingFromEvent(s.newID(), event.(SessionBooked), transition.To, now)
		if rebooked && !pending.CreatedAt.After(current.CreatedAt) {
			// GetCurrent resolves the newest booking by creation time.
			pending.CreatedAt = current.CreatedAt.Add(time.Microsecond)
			pending.UpdatedAt = pending.CreatedAt
		}
	case isStaleCancellation(current, event):
		transition = TransitionResult{From: state, To: state, Reason: reasonStaleSchedulingRef}
		pending = current
	case isReschedule(current, event):
		transition = TransitionResult{From: state, To: state, Changed: true, Reason: reasonRescheduled}
		write = bookingUpdate
		pending = rescheduleBooking(current, event.(SessionBooked), now)
	case transition.Changed:
		write = bookingUpdate
		pending = applyEvent(current, event, transition.To, now)
	default:
		pending = current
	}

	result := ReconcileResult{
		BookingID: pending.ID,
		From:      transition.From,
		To:        transition.To,
		Command:   transition.Command,
		Detail:    transition.Reason,
		Outcome:   OutcomeNoop,
	}
	switch {
	case write == bookingCreate && rebooked:
		result.Outcome = OutcomeRebooked
		result.Detail = "previous booking " + current.ID + " was cancelled"
	case write == bookingCreate:
		result.Outcome = OutcomeCreated
	case write == bookingUpdate:
		result.Outcome = OutcomeApplied
	}

	// The ledger insert goes first: a concurrent delivery of the same event
	// blocks on its unique key and loses with a DuplicateKey error before
	// touching the booking row.
	entry := ProcessedEvent{
		ID:              s.newID(),
		Provider:        envelope.Provider,
		ExternalEventID: envelope.ExternalEventID,
		BookingID:       pending.ID,
		EventKind:       event.Kind(),
		FromStatus:      transition.From,
		ToStatus:        transition.To,
		Outcome:         result.Outcome,
		Detail:          result.Detail,
		ProcessedAt:     now,
	}
	if err := stores.Ledger.RecordProcessed(ctx, entry); err != nil {
		return ReconcileResult{}, err
	}

	booking := pending
	switch write {
	case bookingCreate:
		booking, err = stores.Bookings.Create(ctx, pending)
	case bookingUpdate:
		booking, err = stores.Bookings.Update(ctx, pending, current.Version)
	}
	if err != nil {
		return ReconcileResult{}, err
	}
	result.BookingID = booking.ID

	if transition.Command != "" {
		cmd := newNotificationCommand(s.newID(), transition.Command, booking, envelope, now)
		if err := stores.Outbox.Enqueue(ctx, cmd); err != nil {
			return ReconcileResult{}, err
		}
	}
	return result, nil
}

type bookingWrite int

const (
	bookingNoWrite bookingWrite = iota
	bookingCreate
	bookingUpdate
)

const (
	reasonStaleSchedulingRef = "stale_scheduling_ref"
	reasonRescheduled        = "rescheduled"
)

func loadCurrentBooking(ctx context.Context, store BookingStore, correlationKey string) (Booking, bool, error) {
	booking, err := store.GetCurrent(ctx, correlationKey)
	if err != nil {
		if IsBookingNotFoundError(err) {
			return Booking{}, false, nil
		}
		return Booking{}, false, err
	}
	return booking, true, nil
}

// isRebooking reports whether booked starts a new booking identity for a key
// whose newest booking was cancelled.
func isRebooking(current Booking, booked SessionBooked) bool {
	if current.Status != BookingStatusCancelled {
		return false
	}
	ref := strings.TrimSpace(booked.SchedulingRef)
	return ref != "" && ref != strings.TrimSpace(current.SchedulingRef)
}

// isStaleCancellation reports whether canceled names a scheduling reference
// the booking has already moved away from, as when a reschedule's new invitee
// arrives before the old invitee's cancellation.
func isStaleCancellation(current Booking, event Event) bool {
	canceled, ok := event.(SessionCanceled)
	if !ok {
		return false
	}
	ref := strings.TrimSpace(canceled.SchedulingRef)
	currentRef := strings.TrimSpace(current.SchedulingRef)
	return ref != "" && currentRef != "" && ref != currentRef
}

// isReschedule reports whether booked moves a live booking to a new
// scheduling reference.
func isReschedule(current Booking, event Event) bool {
	booked, ok := event.(SessionBooked)
	if !ok || current.Status == BookingStatusCancelled {
		return false
	}
	ref := strings.TrimSpace(booked.SchedulingRef)
	return ref != "" && ref != strings.TrimSpace(current.SchedulingRef)
}

func rescheduleBooking(current Booking, booked SessionBooked, now time.Time) Booking {
	next := current
	next.SchedulingRef = strings.TrimSpace(booked.SchedulingRef)
	if !booked.StartsAt.IsZero() {
		next.StartsAt = booked.StartsAt
	}
	if !booked.EndsAt.IsZero() {
		next.EndsAt = booked.EndsAt
	}
	next.UpdatedAt = now
	return next
}

func newBookingFromEvent(id string, booked SessionBooked, status BookingStatus, now time.Time) Booking {
	return Booking{
		ID:              id,
		CorrelationKey:  strings.TrimSpace(booked.CorrelationKey),
		ClientID:        booked.ClientID,
		BuilderID:       booked.BuilderID,
		SessionTypeID:   booked.SessionTypeID,
		ClientEmail:     booked.ClientEmail,
		ClientName:      booked.ClientName,
		StartsAt:        booked.StartsAt,
		EndsAt:          booked.EndsAt,
		Status:          status,
		RequiresPayment: booked.RequiresPayment,
		SchedulingRef:   booked.SchedulingRef,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func applyEvent(current Booking, event Event, to BookingStatus, now time.Time) Booking {
	next := current
	next.Status = to
	next.UpdatedAt = now
	switch typed := event.(type) {
	case SessionCanceled:
		next.CancellationReason = typed.Reason
	case PaymentSucceeded:
		if typed.PaymentRef != "" {
			next.PaymentRef = typed.PaymentRef
		}
		next.PaymentFailureReason = ""
	case PaymentFailed:
		if typed.PaymentRef != "" {
			next.PaymentRef = typed.PaymentRef
		}
		next.PaymentFailureReason = typed.FailureReason
	}
	return next
}

func (s *Service) noteAbsorbed(ctx context.Context, event Event, result ReconcileResult) {
	if result.Outcome != OutcomeNoop || result.Duplicate {
		return
	}
	fields := map[string]any{
		"provider_id": event.Envelope().Provider,
		"event_id":    event.Envelope().ExternalEventID,
		"event_kind":  string(event.Kind()),
		"booking_id":  result.BookingID,
		"status":      string(result.From),
		"reason":      result.Detail,
	}
	if result.Detail == reasonPaymentAfterCancellation {
		if paid, ok := event.(PaymentSucceeded); ok {
			fields["payment_ref"] = paid.PaymentRef
		}
		s.recordCounter(ctx, MetricPaymentAfterCancellation, 1, map[string]string{
			"provider_id": event.Envelope().Provider,
		})
		s.logWithLevel(ctx, "warn", "payment received for cancelled booking; refund review required", fields)
		return
	}
	s.logInfo(ctx, "event absorbed without transition", fields)
}
