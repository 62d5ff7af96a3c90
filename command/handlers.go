package command

import (
	"context"

	"github.com/goliatone/go-bookings/core"
	gocmd "github.com/goliatone/go-command"
)

type MutatingService interface {
	Reconcile(ctx context.Context, event core.Event) (core.ReconcileResult, error)
	DispatchNotifications(ctx context.Context, batchSize int) (core.DispatchStats, error)
	PruneLedger(ctx context.Context) (int, error)
}

type ReconcileEventCommand struct {
	service MutatingService
}

func NewReconcileEventCommand(service MutatingService) *ReconcileEventCommand {
	return &ReconcileEventCommand{service: service}
}

func (c *ReconcileEventCommand) Execute(ctx context.Context, msg ReconcileEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconcile service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Reconcile(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchNotificationsCommand struct {
	service MutatingService
}

func NewDispatchNotificationsCommand(service MutatingService) *DispatchNotificationsCommand {
	return &DispatchNotificationsCommand{service: service}
}

func (c *DispatchNotificationsCommand) Execute(ctx context.Context, msg DispatchNotificationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification dispatch service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.DispatchNotifications(ctx, msg.BatchSize)
	storeResult(ctx, out)
	return err
}

type PruneLedgerCommand struct {
	service MutatingService
}

func NewPruneLedgerCommand(service MutatingService) *PruneLedgerCommand {
	return &PruneLedgerCommand{service: service}
}

func (c *PruneLedgerCommand) Execute(ctx context.Context, _ PruneLedgerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	pruned, err := c.service.PruneLedger(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, PruneLedgerResult{Pruned: pruned})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
