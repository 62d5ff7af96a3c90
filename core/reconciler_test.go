package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestReconcile_NormalConfirmation(t *testing.T) {
	f := newReconcileFixture(t)

	created := f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))
	if created.Outcome != OutcomeCreated || created.To != BookingStatusPending {
		t.Fatalf("expected created pending booking, got %+v", created)
	}
	if len(f.outboxKinds()) != 0 {
		t.Fatalf("expected no command for a pending booking, got %v", f.outboxKinds())
	}

	paid := f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))
	if paid.Outcome != OutcomeApplied || paid.To != BookingStatusConfirmed {
		t.Fatalf("expected confirmed booking, got %+v", paid)
	}
	booking := f.current(t, "ref_1")
	if booking.Status != BookingStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", booking.Status)
	}
	if booking.PaymentRef != "pi_evt_pay_1" {
		t.Fatalf("expected payment ref recorded, got %q", booking.PaymentRef)
	}
	if booking.Version != 2 {
		t.Fatalf("expected version 2 after one update, got %d", booking.Version)
	}
	commands := f.store.Outbox().Commands()
	if len(commands) != 1 || commands[0].Kind != NotificationBookingConfirmation {
		t.Fatalf("expected one confirmation command, got %+v", commands)
	}
	if commands[0].Recipient.Email != "client@example.com" {
		t.Fatalf("expected client recipient, got %+v", commands[0].Recipient)
	}
	if commands[0].IdempotencyKey != NotificationIdempotencyKey(booking.ID, NotificationBookingConfirmation) {
		t.Fatalf("expected idempotency key derived from booking and kind")
	}
}

func TestReconcile_FreeSessionConfirmsImmediately(t *testing.T) {
	f := newReconcileFixture(t)

	result := f.mustReconcile(t, bookedEvent("invitee.created:free", "ref_free", false))
	if result.To != BookingStatusConfirmed || result.Command != NotificationBookingConfirmation {
		t.Fatalf("expected immediate confirmation, got %+v", result)
	}
	if kinds := f.outboxKinds(); len(kinds) != 1 || kinds[0] != NotificationBookingConfirmation {
		t.Fatalf("expected confirmation command, got %v", kinds)
	}
}

func TestReconcile_IdempotentRedelivery(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))

	first := f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))
	before := f.current(t, "ref_1")
	second := f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))
	after := f.current(t, "ref_1")

	if first.Duplicate {
		t.Fatalf("expected first delivery to apply")
	}
	if !second.Duplicate || second.Outcome != OutcomeNoop {
		t.Fatalf("expected duplicate no-op on redelivery, got %+v", second)
	}
	if before != after {
		t.Fatalf("expected booking unchanged by redelivery")
	}
	if kinds := f.outboxKinds(); len(kinds) != 1 {
		t.Fatalf("expected exactly one command after redelivery, got %v", kinds)
	}
}

func TestReconcile_DuplicateBookedDelivery(t *testing.T) {
	f := newReconcileFixture(t)
	event := bookedEvent("invitee.created:dup", "ref_dup", false)

	f.mustReconcile(t, event)
	again := f.mustReconcile(t, event)
	if !again.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", again)
	}
	page, err := f.store.Bookings().List(context.Background(), BookingFilter{CorrelationKey: "ref_dup"})
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected a single booking, got %d", page.Total)
	}
	if kinds := f.outboxKinds(); len(kinds) != 1 {
		t.Fatalf("expected one confirmation, got %v", kinds)
	}
}

func TestReconcile_CancellationWinsEitherOrder(t *testing.T) {
	t.Run("payment then cancellation", func(t *testing.T) {
		f := newReconcileFixture(t)
		f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))
		f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))
		f.mustReconcile(t, canceledEvent("invitee.canceled:1", "ref_1"))

		if status := f.current(t, "ref_1").Status; status != BookingStatusCancelled {
			t.Fatalf("expected CANCELLED, got %s", status)
		}
		kinds := f.outboxKinds()
		if len(kinds) != 2 || kinds[0] != NotificationBookingConfirmation || kinds[1] != NotificationBookingCancellation {
			t.Fatalf("expected confirmation then cancellation, got %v", kinds)
		}
	})

	t.Run("cancellation then payment", func(t *testing.T) {
		f := newReconcileFixture(t)
		f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))
		f.mustReconcile(t, canceledEvent("invitee.canceled:1", "ref_1"))
		late := f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))

		if late.Outcome != OutcomeNoop || late.Detail != reasonPaymentAfterCancellation {
			t.Fatalf("expected payment absorbed for refund review, got %+v", late)
		}
		if status := f.current(t, "ref_1").Status; status != BookingStatusCancelled {
			t.Fatalf("expected CANCELLED, got %s", status)
		}
		kinds := f.outboxKinds()
		if len(kinds) != 1 || kinds[0] != NotificationBookingCancellation {
			t.Fatalf("expected only the cancellation command, got %v", kinds)
		}
		if !hasLog(f.logger.snapshot(), "warn", "payment received for cancelled booking; refund review required") {
			t.Fatalf("expected warn log for payment after cancellation")
		}
		if !hasCounterNamed(f.metrics.snapshotCounters(), MetricPaymentAfterCancellation) {
			t.Fatalf("expected %s counter", MetricPaymentAfterCancellation)
		}
		events, err := f.svc.ListBookingEvents(context.Background(), late.BookingID)
		if err != nil {
			t.Fatalf("list booking events: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected three ledger entries, got %d", len(events))
		}
	})
}

func TestReconcile_OutOfOrderCancellationAndReplay(t *testing.T) {
	f := newReconcileFixture(t)
	booked := bookedEvent("invitee.created:1", "ref_1", true)
	f.mustReconcile(t, booked)
	f.mustReconcile(t, canceledEvent("invitee.canceled:1", "ref_1"))

	replayed := f.mustReconcile(t, booked)
	if !replayed.Duplicate {
		t.Fatalf("expected replayed booking event to be a duplicate, got %+v", replayed)
	}

	// Same scheduling reference under a new event id is absorbed.
	renamed := booked
	renamed.ExternalEventID = "invitee.created:1-resent"
	absorbed := f.mustReconcile(t, renamed)
	if absorbed.Outcome != OutcomeNoop || absorbed.Duplicate {
		t.Fatalf("expected recorded no-op, got %+v", absorbed)
	}

	if status := f.current(t, "ref_1").Status; status != BookingStatusCancelled {
		t.Fatalf("expected booking to stay CANCELLED, got %s", status)
	}
	if kinds := f.outboxKinds(); len(kinds) != 1 {
		t.Fatalf("expected only the cancellation command, got %v", kinds)
	}
}

func TestReconcile_PaymentRetryAfterFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))

	failed := f.mustReconcile(t, paymentFailedEvent("evt_fail_1", "ref_1"))
	if failed.To != BookingStatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %+v", failed)
	}
	if reason := f.current(t, "ref_1").PaymentFailureReason; reason != "card_declined" {
		t.Fatalf("expected failure reason recorded, got %q", reason)
	}

	retried := f.mustReconcile(t, paidEvent("evt_pay_2", "ref_1"))
	if retried.From != BookingStatusPaymentFailed || retried.To != BookingStatusConfirmed {
		t.Fatalf("expected PAYMENT_FAILED -> CONFIRMED, got %+v", retried)
	}
	booking := f.current(t, "ref_1")
	if booking.PaymentFailureReason != "" {
		t.Fatalf("expected failure reason cleared, got %q", booking.PaymentFailureReason)
	}
	kinds := f.outboxKinds()
	if len(kinds) != 2 || kinds[0] != NotificationPaymentFailureNotice || kinds[1] != NotificationBookingConfirmation {
		t.Fatalf("expected failure notice then confirmation, got %v", kinds)
	}
}

type failingLedgerUnitOfWork struct {
	inner *MemoryStore
	err   error
}

func (u failingLedgerUnitOfWork) WithinTx(ctx context.Context, fn func(context.Context, TxStores) error) error {
	return u.inner.WithinTx(ctx, func(ctx context.Context, stores TxStores) error {
		stores.Ledger = failingLedger{ReconciliationStore: stores.Ledger, err: u.err}
		return fn(ctx, stores)
	})
}

type failingLedger struct {
	ReconciliationStore
	err error
}

func (l failingLedger) RecordProcessed(context.Context, ProcessedEvent) error {
	return l.err
}

func TestReconcile_LedgerFailureRollsBackBookingWrite(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(DefaultConfig(),
		WithUnitOfWork(failingLedgerUnitOfWork{inner: store, err: errors.New("ledger unavailable")}),
		WithBookingStore(store.Bookings()),
		WithReconciliationStore(store.Ledger()),
		WithNotificationOutbox(store.Outbox()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Reconcile(context.Background(), bookedEvent("invitee.created:1", "ref_1", false))
	if err == nil {
		t.Fatalf("expected reconcile to fail when the ledger write fails")
	}
	if _, getErr := store.Bookings().GetCurrent(context.Background(), "ref_1"); !IsBookingNotFoundError(getErr) {
		t.Fatalf("expected no booking after rollback, got %v", getErr)
	}
	if commands := store.Outbox().Commands(); len(commands) != 0 {
		t.Fatalf("expected no command after rollback, got %d", len(commands))
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500 for persistence failure, got %d", HTTPStatus(err))
	}
}

func TestReconcile_RaceLoserTreatsDuplicateKeyAsProcessed(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(DefaultConfig(),
		WithUnitOfWork(failingLedgerUnitOfWork{
			inner: store,
			err:   NewDuplicateKeyError("core: event already processed", nil),
		}),
		WithBookingStore(store.Bookings()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Reconcile(context.Background(), bookedEvent("invitee.created:1", "ref_1", false))
	if err != nil {
		t.Fatalf("expected duplicate key to be success, got %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
	if _, getErr := store.Bookings().GetCurrent(context.Background(), "ref_1"); !IsBookingNotFoundError(getErr) {
		t.Fatalf("expected the losing write to be rolled back")
	}
}

func TestReconcile_EventBeforeBookingIsRetryable(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.svc.Reconcile(context.Background(), paidEvent("evt_pay_1", "ref_missing"))
	if !IsBookingNotFoundError(err) {
		t.Fatalf("expected booking not found error, got %v", err)
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409 so the provider retries, got %d", HTTPStatus(err))
	}
	processed, _ := f.store.Ledger().HasProcessed(context.Background(), "stripe", "evt_pay_1")
	if processed {
		t.Fatalf("expected no ledger entry for a retryable failure")
	}

	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_missing", true))
	retried := f.mustReconcile(t, paidEvent("evt_pay_1", "ref_missing"))
	if retried.To != BookingStatusConfirmed {
		t.Fatalf("expected retried payment to confirm, got %+v", retried)
	}
}

func TestReconcile_RebookAfterCancellationCreatesNewBooking(t *testing.T) {
	f := newReconcileFixture(t)
	first := f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", false))
	f.mustReconcile(t, canceledEvent("invitee.canceled:1", "ref_1"))

	rebook := bookedEvent("invitee.created:2", "ref_1", false)
	rebook.SchedulingRef = "https://api.calendly.com/scheduled_events/evt_second"
	second := f.mustReconcile(t, rebook)

	if second.Outcome != OutcomeRebooked {
		t.Fatalf("expected rebooked outcome, got %+v", second)
	}
	if second.BookingID == first.BookingID {
		t.Fatalf("expected a new booking identity")
	}
	current := f.current(t, "ref_1")
	if current.ID != second.BookingID || current.Status != BookingStatusConfirmed {
		t.Fatalf("expected newest booking to be current and confirmed, got %+v", current)
	}
	old, err := f.store.Bookings().Get(context.Background(), first.BookingID)
	if err != nil {
		t.Fatalf("get first booking: %v", err)
	}
	if old.Status != BookingStatusCancelled {
		t.Fatalf("expected first booking to stay CANCELLED, got %s", old.Status)
	}
}

func TestReconcile_IgnoredAndInvalidEvents(t *testing.T) {
	f := newReconcileFixture(t)

	result, err := f.svc.Reconcile(context.Background(), Ignored{
		EventEnvelope: EventEnvelope{Provider: "stripe", ExternalEventID: "evt_other"},
		RawType:       "customer.created",
	})
	if err != nil || !result.Ignored {
		t.Fatalf("expected ignored success, got %+v %v", result, err)
	}

	result, err = f.svc.Reconcile(context.Background(), Ignored{
		EventEnvelope: EventEnvelope{Provider: "calendly"},
		RawType:       "routing_form_submission.created",
	})
	if err != nil || !result.Ignored {
		t.Fatalf("expected ignored event without an id to be acknowledged, got %+v %v", result, err)
	}

	_, err = f.svc.Reconcile(context.Background(), paidEvent("", "ref_1"))
	if !IsBadInputError(err) {
		t.Fatalf("expected bad input for an actionable event without an id, got %v", err)
	}

	_, err = f.svc.Reconcile(context.Background(), paidEvent("evt_pay_1", ""))
	if !IsNormalizationError(err) {
		t.Fatalf("expected normalization error for a missing correlation key, got %v", err)
	}
	if HTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", HTTPStatus(err))
	}
}

type blockingUnitOfWork struct{}

func (blockingUnitOfWork) WithinTx(ctx context.Context, _ func(context.Context, TxStores) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReconcile_ProcessingBudgetExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconciliation.ProcessingBudget = 20 * time.Millisecond
	svc, err := NewService(cfg, WithUnitOfWork(blockingUnitOfWork{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Reconcile(context.Background(), bookedEvent("invitee.created:1", "ref_1", false))
	if !IsProcessingTimeoutError(err) {
		t.Fatalf("expected processing timeout error, got %v", err)
	}
	if HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", HTTPStatus(err))
	}
}

type conflictingBookingStore struct {
	BookingStore
}

func (conflictingBookingStore) Update(_ context.Context, booking Booking, expected int) (Booking, error) {
	return Booking{}, NewConcurrentUpdateError("core: booking changed concurrently", map[string]any{"booking_id": booking.ID})
}

type conflictingUnitOfWork struct {
	inner *MemoryStore
}

func (u conflictingUnitOfWork) WithinTx(ctx context.Context, fn func(context.Context, TxStores) error) error {
	return u.inner.WithinTx(ctx, func(ctx context.Context, stores TxStores) error {
		stores.Bookings = conflictingBookingStore{BookingStore: stores.Bookings}
		return fn(ctx, stores)
	})
}

func TestReconcile_ConcurrentUpdateRollsBack(t *testing.T) {
	store := NewMemoryStore()
	seed, err := NewService(DefaultConfig(), WithUnitOfWork(store), WithBookingStore(store.Bookings()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := seed.Reconcile(context.Background(), bookedEvent("invitee.created:1", "ref_1", true)); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	svc, err := NewService(DefaultConfig(), WithUnitOfWork(conflictingUnitOfWork{inner: store}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Reconcile(context.Background(), paidEvent("evt_pay_1", "ref_1"))
	if !IsConcurrentUpdateError(err) {
		t.Fatalf("expected concurrent update error, got %v", err)
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %d", HTTPStatus(err))
	}
	processed, _ := store.Ledger().HasProcessed(context.Background(), "stripe", "evt_pay_1")
	if processed {
		t.Fatalf("expected ledger write rolled back")
	}
}

func TestReconcile_RecordsObservability(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", true))
	_, _ = f.svc.Reconcile(context.Background(), paidEvent("evt_pay_x", "ref_unknown"))

	if !hasCounter(f.metrics.counters, "bookings.reconcile_event.total", "success") {
		t.Fatalf("expected success counter")
	}
	if !hasCounter(f.metrics.counters, "bookings.reconcile_event.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	var failure *capturedLog
	for _, record := range f.logger.snapshot() {
		if record.msg == "reconcile_event failed" {
			record := record
			failure = &record
		}
	}
	if failure == nil {
		t.Fatalf("expected failure log")
	}
	if failure.fields["error_text_code"] != BookingErrorNotFound {
		t.Fatalf("expected error text code, got %#v", failure.fields["error_text_code"])
	}
}

func TestReconcile_RescheduleEitherOrder(t *testing.T) {
	const (
		oldRef = "https://api.calendly.com/scheduled_events/A/invitees/A1"
		newRef = "https://api.calendly.com/scheduled_events/B/invitees/B1"
	)
	booked := func(eventID string, ref string) SessionBooked {
		event := bookedEvent(eventID, "ref_1", true)
		event.SchedulingRef = ref
		return event
	}
	canceled := func(eventID string, ref string) SessionCanceled {
		event := canceledEvent(eventID, "ref_1")
		event.SchedulingRef = ref
		event.Reason = "rescheduled"
		return event
	}

	t.Run("new invitee before old cancellation", func(t *testing.T) {
		f := newReconcileFixture(t)
		first := f.mustReconcile(t, booked("invitee.created:A1", oldRef))
		f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))

		moved := booked("invitee.created:B1", newRef)
		moved.StartsAt = testNow.Add(48 * time.Hour)
		moved.EndsAt = testNow.Add(49 * time.Hour)
		rescheduled := f.mustReconcile(t, moved)
		if rescheduled.Outcome != OutcomeApplied || rescheduled.Detail != reasonRescheduled {
			t.Fatalf("expected reschedule to apply, got %+v", rescheduled)
		}
		if rescheduled.BookingID != first.BookingID || rescheduled.Command != "" {
			t.Fatalf("expected same booking without a notification, got %+v", rescheduled)
		}

		stale := f.mustReconcile(t, canceled("invitee.canceled:A1", oldRef))
		if stale.Outcome != OutcomeNoop || stale.Detail != reasonStaleSchedulingRef {
			t.Fatalf("expected old invitee cancellation to be absorbed, got %+v", stale)
		}

		current := f.current(t, "ref_1")
		if current.Status != BookingStatusConfirmed || current.SchedulingRef != newRef {
			t.Fatalf("expected confirmed booking on the new invitee, got %+v", current)
		}
		if !current.StartsAt.Equal(moved.StartsAt) || current.Version != 3 {
			t.Fatalf("expected moved start and version 3, got %+v", current)
		}
		if kinds := f.outboxKinds(); len(kinds) != 1 || kinds[0] != NotificationBookingConfirmation {
			t.Fatalf("expected only the confirmation, got %v", kinds)
		}

		f.mustReconcile(t, canceled("invitee.canceled:B1", newRef))
		if current := f.current(t, "ref_1"); current.Status != BookingStatusCancelled {
			t.Fatalf("expected new invitee cancellation to cancel, got %s", current.Status)
		}
	})

	t.Run("old cancellation before new invitee", func(t *testing.T) {
		f := newReconcileFixture(t)
		first := f.mustReconcile(t, booked("invitee.created:A1", oldRef))
		f.mustReconcile(t, paidEvent("evt_pay_1", "ref_1"))
		f.mustReconcile(t, canceled("invitee.canceled:A1", oldRef))

		second := f.mustReconcile(t, booked("invitee.created:B1", newRef))
		if second.Outcome != OutcomeRebooked || second.BookingID == first.BookingID {
			t.Fatalf("expected a new booking for the new invitee, got %+v", second)
		}
		current := f.current(t, "ref_1")
		if current.ID != second.BookingID || current.SchedulingRef != newRef || current.Status != BookingStatusPending {
			t.Fatalf("expected pending booking on the new invitee, got %+v", current)
		}
		kinds := f.outboxKinds()
		if len(kinds) != 2 || kinds[0] != NotificationBookingConfirmation || kinds[1] != NotificationBookingCancellation {
			t.Fatalf("expected confirmation then cancellation, got %v", kinds)
		}
	})
}

// racingUnitOfWork replays the read-committed interleaving of two deliveries
// of one event: both read the ledger and the booking before either commits.
type racingUnitOfWork struct {
	mu       sync.Mutex
	snapshot Booking
	stored   int
	ledger   map[string]bool
	updates  int
	enqueued []NotificationCommand
}

func (u *racingUnitOfWork) WithinTx(ctx context.Context, fn func(context.Context, TxStores) error) error {
	return fn(ctx, TxStores{
		Bookings: racingBookings{uow: u},
		Ledger:   racingLedger{uow: u},
		Outbox:   racingOutbox{uow: u},
	})
}

type racingBookings struct {
	BookingStore
	uow *racingUnitOfWork
}

func (b racingBookings) GetCurrent(context.Context, string) (Booking, error) {
	return b.uow.snapshot, nil
}

func (b racingBookings) Update(_ context.Context, booking Booking, expected int) (Booking, error) {
	b.uow.mu.Lock()
	defer b.uow.mu.Unlock()
	if b.uow.stored != expected {
		return Booking{}, NewConcurrentUpdateError("core: booking changed concurrently", nil)
	}
	b.uow.stored = expected + 1
	b.uow.updates++
	booking.Version = b.uow.stored
	return booking, nil
}

type racingLedger struct {
	ReconciliationStore
	uow *racingUnitOfWork
}

func (racingLedger) HasProcessed(context.Context, string, string) (bool, error) {
	return false, nil
}

func (l racingLedger) RecordProcessed(_ context.Context, entry ProcessedEvent) error {
	l.uow.mu.Lock()
	defer l.uow.mu.Unlock()
	key := entry.Provider + "|" + entry.ExternalEventID
	if l.uow.ledger[key] {
		return NewDuplicateKeyError("core: event already processed", nil)
	}
	l.uow.ledger[key] = true
	return nil
}

type racingOutbox struct {
	NotificationOutbox
	uow *racingUnitOfWork
}

func (o racingOutbox) Enqueue(_ context.Context, cmd NotificationCommand) error {
	o.uow.mu.Lock()
	defer o.uow.mu.Unlock()
	o.uow.enqueued = append(o.uow.enqueued, cmd)
	return nil
}

func TestReconcile_ConcurrentSameEventLosesOnLedgerKey(t *testing.T) {
	uow := &racingUnitOfWork{
		snapshot: Booking{
			ID:              "bk_1",
			CorrelationKey:  "ref_1",
			Status:          BookingStatusPending,
			RequiresPayment: true,
			ClientEmail:     "client@example.com",
			Version:         1,
		},
		stored: 1,
		ledger: map[string]bool{},
	}
	svc, err := NewService(DefaultConfig(), WithUnitOfWork(uow))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	event := paidEvent("evt_pay_1", "ref_1")

	first, err := svc.Reconcile(context.Background(), event)
	if err != nil || first.To != BookingStatusConfirmed {
		t.Fatalf("expected first delivery to confirm, got %+v %v", first, err)
	}
	second, err := svc.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("expected the losing delivery to succeed as a no-op, got %v (status %d)", err, HTTPStatus(err))
	}
	if !second.Duplicate || second.Outcome != OutcomeNoop {
		t.Fatalf("expected duplicate no-op, got %+v", second)
	}
	if uow.updates != 1 || len(uow.enqueued) != 1 {
		t.Fatalf("expected one booking write and one command, got %d writes %d commands", uow.updates, len(uow.enqueued))
	}
}
