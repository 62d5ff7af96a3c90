package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) snapshotCounters() []capturedCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedCounter(nil), m.counters...)
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

type captureSender struct {
	mu    sync.Mutex
	sent  []NotificationCommand
	errOn map[NotificationKind]error
}

func (s *captureSender) Send(_ context.Context, cmd NotificationCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errOn[cmd.Kind]; err != nil {
		return err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *captureSender) commands() []NotificationCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationCommand(nil), s.sent...)
}

func sequentialIDs() IDGenerator {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%03d", next)
	}
}

type reconcileFixture struct {
	svc     *Service
	store   *MemoryStore
	sender  *captureSender
	metrics *captureMetricsRecorder
	logger  *captureLogger
}

func newReconcileFixture(t *testing.T, opts ...Option) reconcileFixture {
	t.Helper()
	store := NewMemoryStore()
	sender := &captureSender{}
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	base := []Option{
		WithUnitOfWork(store),
		WithBookingStore(store.Bookings()),
		WithReconciliationStore(store.Ledger()),
		WithNotificationOutbox(store.Outbox()),
		WithNotificationSender(sender),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return testNow }),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return reconcileFixture{svc: svc, store: store, sender: sender, metrics: metrics, logger: logger}
}

func (f reconcileFixture) current(t *testing.T, correlationKey string) Booking {
	t.Helper()
	booking, err := f.store.Bookings().GetCurrent(context.Background(), correlationKey)
	if err != nil {
		t.Fatalf("load booking %q: %v", correlationKey, err)
	}
	return booking
}

func (f reconcileFixture) outboxKinds() []NotificationKind {
	var kinds []NotificationKind
	for _, cmd := range f.store.Outbox().Commands() {
		kinds = append(kinds, cmd.Kind)
	}
	return kinds
}

func (f reconcileFixture) mustReconcile(t *testing.T, event Event) ReconcileResult {
	t.Helper()
	result, err := f.svc.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("reconcile %s %s: %v", event.Kind(), event.Envelope().ExternalEventID, err)
	}
	return result
}

func bookedEvent(eventID string, key string, requiresPayment bool) SessionBooked {
	return SessionBooked{
		EventEnvelope: EventEnvelope{
			Provider:        "calendly",
			ExternalEventID: eventID,
			CorrelationKey:  key,
			OccurredAt:      testNow,
		},
		SchedulingRef:   "https://api.calendly.com/scheduled_events/evt_" + key,
		ClientID:        "client_1",
		BuilderID:       "builder_1",
		SessionTypeID:   "intro",
		ClientEmail:     "client@example.com",
		ClientName:      "Client One",
		StartsAt:        testNow.Add(24 * time.Hour),
		EndsAt:          testNow.Add(25 * time.Hour),
		RequiresPayment: requiresPayment,
	}
}

func canceledEvent(eventID string, key string) SessionCanceled {
	return SessionCanceled{
		EventEnvelope: EventEnvelope{Provider: "calendly", ExternalEventID: eventID, CorrelationKey: key},
		SchedulingRef: "https://api.calendly.com/scheduled_events/evt_" + key,
		Reason:        "client requested",
	}
}

func paidEvent(eventID string, key string) PaymentSucceeded {
	return PaymentSucceeded{
		EventEnvelope: EventEnvelope{Provider: "stripe", ExternalEventID: eventID, CorrelationKey: key},
		PaymentRef:    "pi_" + eventID,
		AmountMinor:   5000,
		Currency:      "usd",
	}
}

func paymentFailedEvent(eventID string, key string) PaymentFailed {
	return PaymentFailed{
		EventEnvelope: EventEnvelope{Provider: "stripe", ExternalEventID: eventID, CorrelationKey: key},
		PaymentRef:    "pi_" + eventID,
		FailureReason: "card_declined",
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasCounterNamed(items []capturedCounter, name string) bool {
	for _, item := range items {
		if item.name == name {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string) bool {
	for _, item := range items {
		if item.level == level && item.msg == message {
			return true
		}
	}
	return false
}
