// Package bookings reconciles scheduling and payment provider webhooks into a
// single booking lifecycle and emits at-most-once notification commands.
//
// The root package re-exports the core contracts and wires the command and
// query handlers; storage, transports and adapters live in subpackages.
package bookings

import "github.com/goliatone/go-bookings/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Booking = core.Booking
type BookingStatus = core.BookingStatus
type BookingFilter = core.BookingFilter
type BookingPage = core.BookingPage
type ProcessedEvent = core.ProcessedEvent

type Event = core.Event
type SessionBooked = core.SessionBooked
type SessionCanceled = core.SessionCanceled
type PaymentSucceeded = core.PaymentSucceeded
type PaymentFailed = core.PaymentFailed
type Ignored = core.Ignored

type ReconcileResult = core.ReconcileResult
type NotificationCommand = core.NotificationCommand
type NotificationSender = core.NotificationSender

var (
	WithLogger                 = core.WithLogger
	WithLoggerProvider         = core.WithLoggerProvider
	WithMetricsRecorder        = core.WithMetricsRecorder
	WithErrorMapper            = core.WithErrorMapper
	WithConfigProvider         = core.WithConfigProvider
	WithOptionsResolver        = core.WithOptionsResolver
	WithUnitOfWork             = core.WithUnitOfWork
	WithBookingStore           = core.WithBookingStore
	WithReconciliationStore    = core.WithReconciliationStore
	WithLedgerPruner           = core.WithLedgerPruner
	WithNotificationOutbox     = core.WithNotificationOutbox
	WithNotificationSender     = core.WithNotificationSender
	WithIDGenerator            = core.WithIDGenerator
	WithClock                  = core.WithClock
	Transition                 = core.Transition
	NotificationIdempotencyKey = core.NotificationIdempotencyKey
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
