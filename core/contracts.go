package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// BookingStore reads and writes bookings. GetCurrent resolves the newest
// booking for a correlation key and returns a BookingNotFound error when none exists.
type BookingStore interface {
	Get(ctx context.Context, id string) (Booking, error)
	GetCurrent(ctx context.Context, correlationKey string) (Booking, error)
	Create(ctx context.Context, booking Booking) (Booking, error)
	// Update persists booking when the stored version equals expectedVersion and
	// fails with a ConcurrentUpdate error otherwise.
	Update(ctx context.Context, booking Booking, expectedVersion int) (Booking, error)
	List(ctx context.Context, filter BookingFilter) (BookingPage, error)
}

// ReconciliationStore is the processed-event ledger.
type ReconciliationStore interface {
	HasProcessed(ctx context.Context, provider string, externalEventID string) (bool, error)
	// RecordProcessed fails with a DuplicateKey error when the key already exists.
	RecordProcessed(ctx context.Context, entry ProcessedEvent) error
	ListForBooking(ctx context.Context, bookingID string) ([]ProcessedEvent, error)
}

type LedgerPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type NotificationOutbox interface {
	// Enqueue stores cmd as pending. A command whose idempotency key already
	// exists is skipped without error.
	Enqueue(ctx context.Context, cmd NotificationCommand) error
	ClaimBatch(ctx context.Context, limit int) ([]NotificationCommand, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed records a failed send. A zero nextAttemptAt parks the command as failed.
	MarkFailed(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error
}

// TxStores are the stores bound to one open transaction.
type TxStores struct {
	Bookings BookingStore
	Ledger   ReconciliationStore
	Outbox   NotificationOutbox
}

// UnitOfWork runs fn inside one transaction: commit when fn returns nil,
// roll back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

// NotificationSender is the external delivery collaborator.
type NotificationSender interface {
	Send(ctx context.Context, cmd NotificationCommand) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, event Event) (ReconcileResult, error)
}

type BookingReader interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) (BookingPage, error)
	ListBookingEvents(ctx context.Context, bookingID string) ([]ProcessedEvent, error)
}

type ReconcileResult struct {
	BookingID string
	Outcome   ProcessedOutcome
	From      BookingStatus
	To        BookingStatus
	Command   NotificationKind
	Duplicate bool
	Ignored   bool
	Detail    string
}

type DispatchStats struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
