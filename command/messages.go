package command

import (
	"github.com/goliatone/go-bookings/core"
)

const (
	TypeReconcileEvent        = "bookings.command.event.reconcile"
	TypeDispatchNotifications = "bookings.command.notifications.dispatch"
	TypePruneLedger           = "bookings.command.ledger.prune"
)

// ReconcileEventMessage carries one normalized provider event.
type ReconcileEventMessage struct {
	Event core.Event
}

func (ReconcileEventMessage) Type() string { return TypeReconcileEvent }

func (m ReconcileEventMessage) Validate() error {
	if m.Event == nil {
		return commandValidationError("event", "event is required")
	}
	envelope := m.Event.Envelope()
	if envelope.Provider == "" {
		return commandValidationError("event.provider", "provider is required")
	}
	if envelope.ExternalEventID == "" {
		return commandValidationError("event.external_event_id", "external event id is required")
	}
	return nil
}

type DispatchNotificationsMessage struct {
	// BatchSize of zero uses the configured notifications.batch_size.
	BatchSize int
}

func (DispatchNotificationsMessage) Type() string { return TypeDispatchNotifications }

func (m DispatchNotificationsMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must not be negative")
	}
	return nil
}

type PruneLedgerMessage struct{}

func (PruneLedgerMessage) Type() string { return TypePruneLedger }

func (PruneLedgerMessage) Validate() error { return nil }

type PruneLedgerResult struct {
	Pruned int
}
