package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedCommand(t *testing.T, outbox NotificationOutbox, id string, kind NotificationKind) {
	t.Helper()
	booking := Booking{ID: "bk_" + id, CorrelationKey: "ref_" + id, Status: BookingStatusConfirmed, ClientEmail: "c@example.com"}
	cmd := newNotificationCommand(id, kind, booking, EventEnvelope{Provider: "stripe", ExternalEventID: "evt_" + id}, testNow)
	if err := outbox.Enqueue(context.Background(), cmd); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestNotificationDispatcher_SendsOnceAndMarksSent(t *testing.T) {
	store := NewMemoryStore()
	sender := &captureSender{}
	seedCommand(t, store.Outbox(), "n1", NotificationBookingConfirmation)
	seedCommand(t, store.Outbox(), "n2", NotificationBookingCancellation)

	dispatcher, err := NewNotificationDispatcher(store.Outbox(), sender, NotificationDispatcherConfig{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.DispatchPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 2 || stats.Sent != 2 {
		t.Fatalf("expected 2 claimed and sent, got %+v", stats)
	}
	again, err := dispatcher.DispatchPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if again.Claimed != 0 {
		t.Fatalf("expected nothing left to claim, got %+v", again)
	}
	if len(sender.commands()) != 2 {
		t.Fatalf("expected two sends, got %d", len(sender.commands()))
	}
	for _, cmd := range store.Outbox().Commands() {
		if cmd.Status != NotificationStatusSent {
			t.Fatalf("expected sent status, got %s", cmd.Status)
		}
	}
}

func TestNotificationDispatcher_FailedSendIsNotRetriedByDefault(t *testing.T) {
	store := NewMemoryStore()
	sender := &captureSender{errOn: map[NotificationKind]error{
		NotificationBookingConfirmation: errors.New("smtp down"),
	}}
	seedCommand(t, store.Outbox(), "n1", NotificationBookingConfirmation)

	dispatcher, err := NewNotificationDispatcher(store.Outbox(), sender, DefaultNotificationDispatcherConfig())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.DispatchPending(context.Background(), 10)
	if err == nil {
		t.Fatalf("expected send error to surface")
	}
	if stats.Failed != 1 || stats.Retried != 0 {
		t.Fatalf("expected one parked failure, got %+v", stats)
	}
	commands := store.Outbox().Commands()
	if commands[0].Status != NotificationStatusFailed || commands[0].LastError == "" {
		t.Fatalf("expected failed status with error, got %+v", commands[0])
	}
	again, _ := dispatcher.DispatchPending(context.Background(), 10)
	if again.Claimed != 0 {
		t.Fatalf("expected failed command to stay parked")
	}
}

func TestNotificationDispatcher_RetriesWithBackoffWhenAllowed(t *testing.T) {
	store := NewMemoryStore()
	sender := &captureSender{errOn: map[NotificationKind]error{
		NotificationPaymentFailureNotice: errors.New("timeout"),
	}}
	seedCommand(t, store.Outbox(), "n1", NotificationPaymentFailureNotice)

	dispatcher, err := NewNotificationDispatcher(store.Outbox(), sender, NotificationDispatcherConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, _ := dispatcher.DispatchPending(context.Background(), 10)
	if stats.Retried != 1 {
		t.Fatalf("expected a scheduled retry, got %+v", stats)
	}
	cmd := store.Outbox().Commands()[0]
	if cmd.Status != NotificationStatusPending || !cmd.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatalf("expected pending with a future attempt, got %+v", cmd)
	}
	if delay := dispatcher.nextBackoffDelay(10); delay != time.Minute {
		t.Fatalf("expected backoff capped at max, got %s", delay)
	}
}

func TestService_DispatchNotificationsAfterReconcile(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", false))

	stats, err := f.svc.DispatchNotifications(context.Background(), 0)
	if err != nil {
		t.Fatalf("dispatch notifications: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected one sent command, got %+v", stats)
	}
	sent := f.sender.commands()
	if sent[0].Kind != NotificationBookingConfirmation || sent[0].Data["session_type_id"] != "intro" {
		t.Fatalf("expected confirmation with render data, got %+v", sent[0])
	}
	if !hasCounter(f.metrics.counters, "bookings.dispatch_notifications.total", "success") {
		t.Fatalf("expected dispatch counter")
	}
}

func TestService_ExecuteJob(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", false))

	if err := f.svc.ExecuteJob(context.Background(), JobExecutionMessage{
		JobID:      JobIDDispatchNotifications,
		Parameters: map[string]any{"batch_size": "5"},
	}); err != nil {
		t.Fatalf("dispatch job: %v", err)
	}
	if len(f.sender.commands()) != 1 {
		t.Fatalf("expected dispatch job to send")
	}
	if err := f.svc.ExecuteJob(context.Background(), JobExecutionMessage{JobID: "unknown"}); err == nil {
		t.Fatalf("expected unknown job error")
	}
}

func TestService_PruneLedger(t *testing.T) {
	f := newReconcileFixture(t)
	f.mustReconcile(t, bookedEvent("invitee.created:1", "ref_1", false))

	old := ProcessedEvent{
		ID:              "old",
		Provider:        "stripe",
		ExternalEventID: "evt_ancient",
		ProcessedAt:     testNow.Add(-200 * 24 * time.Hour),
	}
	if err := f.store.Ledger().RecordProcessed(context.Background(), old); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	pruned, err := f.svc.PruneLedger(context.Background())
	if err != nil {
		t.Fatalf("prune ledger: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one pruned entry, got %d", pruned)
	}
	kept, _ := f.store.Ledger().HasProcessed(context.Background(), "calendly", "invitee.created:1")
	if !kept {
		t.Fatalf("expected recent entry to survive pruning")
	}
}
