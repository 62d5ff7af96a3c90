package sqlstore

import (
	"context"
	"fmt"

	"github.com/goliatone/go-bookings/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns the SQL stores and runs reconciliation units of work
// on a single bun transaction.
type RepositoryFactory struct {
	db *bun.DB

	bookingStore *BookingStore
	ledgerStore  *LedgerStore
	outboxStore  *OutboxStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.bookingStore != nil && f.ledgerStore != nil && f.outboxStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) BookingStore() *BookingStore {
	if f == nil {
		return nil
	}
	return f.bookingStore
}

func (f *RepositoryFactory) LedgerStore() *LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) OutboxStore() *OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

// WithinTx runs fn on stores bound to one transaction. Any error from fn
// rolls back every write made through them.
func (f *RepositoryFactory) WithinTx(ctx context.Context, fn func(ctx context.Context, stores core.TxStores) error) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction function is required")
	}
	return f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, core.TxStores{
			Bookings: f.bookingStore.withTx(tx),
			Ledger:   f.ledgerStore.withTx(tx),
			Outbox:   f.outboxStore.withTx(tx),
		})
	})
}

// ServiceOptions wires the SQL stores into core.NewService.
func (f *RepositoryFactory) ServiceOptions() []core.Option {
	if f == nil {
		return nil
	}
	return []core.Option{
		core.WithUnitOfWork(f),
		core.WithBookingStore(f.bookingStore),
		core.WithReconciliationStore(f.ledgerStore),
		core.WithLedgerPruner(f.ledgerStore),
		core.WithNotificationOutbox(f.outboxStore),
	}
}

func (f *RepositoryFactory) initStores() error {
	bookingStore, err := NewBookingStore(f.db)
	if err != nil {
		return err
	}
	f.bookingStore = bookingStore
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.ledgerStore = ledgerStore
	outboxStore, err := NewOutboxStore(f.db)
	if err != nil {
		return err
	}
	f.outboxStore = outboxStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
