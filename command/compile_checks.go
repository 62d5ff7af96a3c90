package command

import (
	"github.com/goliatone/go-bookings/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[ReconcileEventMessage]        = (*ReconcileEventCommand)(nil)
	_ gocmd.Commander[DispatchNotificationsMessage] = (*DispatchNotificationsCommand)(nil)
	_ gocmd.Commander[PruneLedgerMessage]           = (*PruneLedgerCommand)(nil)
	_ MutatingService                               = (*core.Service)(nil)
)
