package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Reconciler    = (*Service)(nil)
	_ BookingReader = (*Service)(nil)

	_ UnitOfWork          = (*MemoryStore)(nil)
	_ BookingStore        = (*MemoryBookingStore)(nil)
	_ ReconciliationStore = (*MemoryLedgerStore)(nil)
	_ LedgerPruner        = (*MemoryLedgerStore)(nil)
	_ NotificationOutbox  = (*MemoryNotificationOutbox)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
