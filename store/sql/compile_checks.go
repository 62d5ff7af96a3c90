package sqlstore

import "github.com/goliatone/go-bookings/core"

var (
	_ core.BookingStore        = (*BookingStore)(nil)
	_ core.ReconciliationStore = (*LedgerStore)(nil)
	_ core.LedgerPruner        = (*LedgerStore)(nil)
	_ core.NotificationOutbox  = (*OutboxStore)(nil)
	_ core.UnitOfWork          = (*RepositoryFactory)(nil)
	_ core.BookingReader       = (*CachedBookingReader)(nil)
)
