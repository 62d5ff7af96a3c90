package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps bookings, the processed-event ledger and the notification
// outbox in process memory. Transactions are serialized and roll back by
// restoring a snapshot.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	bookings     map[string]Booking
	bookingOrder []string
	ledger       map[string]ProcessedEvent
	outbox       map[string]NotificationCommand
	outboxOrder  []string
	outboxKeys   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   utcNow,
	}
}

func newMemoryState() memoryState {
	return memoryState{
		bookings:   map[string]Booking{},
		ledger:     map[string]ProcessedEvent{},
		outbox:     map[string]NotificationCommand{},
		outboxKeys: map[string]string{},
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for key, value := range s.bookings {
		out.bookings[key] = value
	}
	out.bookingOrder = append([]string(nil), s.bookingOrder...)
	for key, value := range s.ledger {
		out.ledger[key] = value
	}
	for key, value := range s.outbox {
		value.Data = cloneFields(value.Data)
		out.outbox[key] = value
	}
	out.outboxOrder = append([]string(nil), s.outboxOrder...)
	for key, value := range s.outboxKeys {
		out.outboxKeys[key] = value
	}
	return out
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	if m == nil {
		return fmt.Errorf("core: memory store is nil")
	}
	if fn == nil {
		return fmt.Errorf("core: transaction function is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	stores := TxStores{
		Bookings: &MemoryBookingStore{store: m, inTx: true},
		Ledger:   &MemoryLedgerStore{store: m, inTx: true},
		Outbox:   &MemoryNotificationOutbox{store: m, inTx: true},
	}
	if err := fn(ctx, stores); err != nil {
		m.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) Bookings() *MemoryBookingStore {
	return &MemoryBookingStore{store: m}
}

func (m *MemoryStore) Ledger() *MemoryLedgerStore {
	return &MemoryLedgerStore{store: m}
}

func (m *MemoryStore) Outbox() *MemoryNotificationOutbox {
	return &MemoryNotificationOutbox{store: m}
}

// access runs fn against the live state. Views handed out by WithinTx already
// hold the lock.
func (m *MemoryStore) access(ctx context.Context, inTx bool, fn func(state *memoryState) error) error {
	if m == nil {
		return fmt.Errorf("core: memory store is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if !inTx {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(&m.state)
}

type MemoryBookingStore struct {
	store *MemoryStore
	inTx  bool
}

func (s *MemoryBookingStore) Get(ctx context.Context, id string) (Booking, error) {
	var out Booking
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		booking, ok := state.bookings[strings.TrimSpace(id)]
		if !ok {
			return NewBookingNotFoundError(fmt.Sprintf("core: booking %q not found", id), map[string]any{"booking_id": id})
		}
		out = booking
		return nil
	})
	return out, err
}

func (s *MemoryBookingStore) GetCurrent(ctx context.Context, correlationKey string) (Booking, error) {
	var out Booking
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		key := strings.TrimSpace(correlationKey)
		found := false
		for _, id := range state.bookingOrder {
			booking := state.bookings[id]
			if booking.CorrelationKey != key {
				continue
			}
			if !found || !booking.CreatedAt.Before(out.CreatedAt) {
				out = booking
				found = true
			}
		}
		if !found {
			return NewBookingNotFoundError(
				fmt.Sprintf("core: no booking for correlation key %q", key),
				map[string]any{"correlation_key": key},
			)
		}
		return nil
	})
	return out, err
}

func (s *MemoryBookingStore) Create(ctx context.Context, booking Booking) (Booking, error) {
	if err := booking.Validate(); err != nil {
		return Booking{}, err
	}
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		if _, exists := state.bookings[booking.ID]; exists {
			return fmt.Errorf("core: booking %q already exists", booking.ID)
		}
		if booking.Version <= 0 {
			booking.Version = 1
		}
		state.bookings[booking.ID] = booking
		state.bookingOrder = append(state.bookingOrder, booking.ID)
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return booking, nil
}

func (s *MemoryBookingStore) Update(ctx context.Context, booking Booking, expectedVersion int) (Booking, error) {
	if err := booking.Validate(); err != nil {
		return Booking{}, err
	}
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		stored, ok := state.bookings[booking.ID]
		if !ok {
			return NewBookingNotFoundError(fmt.Sprintf("core: booking %q not found", booking.ID), map[string]any{"booking_id": booking.ID})
		}
		if stored.Version != expectedVersion {
			return NewConcurrentUpdateError(
				fmt.Sprintf("core: booking %q changed concurrently", booking.ID),
				map[string]any{"booking_id": booking.ID, "expected_version": expectedVersion, "stored_version": stored.Version},
			)
		}
		booking.Version = expectedVersion + 1
		booking.CreatedAt = stored.CreatedAt
		state.bookings[booking.ID] = booking
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return booking, nil
}

func (s *MemoryBookingStore) List(ctx context.Context, filter BookingFilter) (BookingPage, error) {
	filter = filter.Normalized()
	var page BookingPage
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		matches := make([]Booking, 0, len(state.bookings))
		for _, id := range state.bookingOrder {
			booking := state.bookings[id]
			if filter.CorrelationKey != "" && booking.CorrelationKey != filter.CorrelationKey {
				continue
			}
			if filter.ClientID != "" && booking.ClientID != filter.ClientID {
				continue
			}
			if filter.BuilderID != "" && booking.BuilderID != filter.BuilderID {
				continue
			}
			if filter.Status != BookingStatusNone && booking.Status != filter.Status {
				continue
			}
			matches = append(matches, booking)
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		})
		page = BookingPage{Page: filter.Page, PerPage: filter.PerPage, Total: len(matches)}
		start := filter.Offset()
		if start >= len(matches) {
			page.Items = []Booking{}
			return nil
		}
		end := start + filter.PerPage
		if end > len(matches) {
			end = len(matches)
		}
		page.Items = append([]Booking(nil), matches[start:end]...)
		page.HasNext = end < len(matches)
		return nil
	})
	return page, err
}

type MemoryLedgerStore struct {
	store *MemoryStore
	inTx  bool
}

func ledgerKey(provider string, externalEventID string) string {
	return strings.TrimSpace(provider) + "\x00" + strings.TrimSpace(externalEventID)
}

func (s *MemoryLedgerStore) HasProcessed(ctx context.Context, provider string, externalEventID string) (bool, error) {
	var found bool
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		_, found = state.ledger[ledgerKey(provider, externalEventID)]
		return nil
	})
	return found, err
}

func (s *MemoryLedgerStore) RecordProcessed(ctx context.Context, entry ProcessedEvent) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return s.store.access(ctx, s.inTx, func(state *memoryState) error {
		key := ledgerKey(entry.Provider, entry.ExternalEventID)
		if _, exists := state.ledger[key]; exists {
			return NewDuplicateKeyError("core: event already processed", map[string]any{
				"provider_id": entry.Provider,
				"event_id":    entry.ExternalEventID,
			})
		}
		if entry.ProcessedAt.IsZero() {
			entry.ProcessedAt = s.store.now()
		}
		state.ledger[key] = entry
		return nil
	})
}

func (s *MemoryLedgerStore) ListForBooking(ctx context.Context, bookingID string) ([]ProcessedEvent, error) {
	var out []ProcessedEvent
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		for _, entry := range state.ledger {
			if entry.BookingID == strings.TrimSpace(bookingID) {
				out = append(out, entry)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ExternalEventID < out[j].ExternalEventID
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out, err
}

func (s *MemoryLedgerStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	pruned := 0
	err := s.store.access(ctx, s.inTx, func(state *memoryState) error {
		for key, entry := range state.ledger {
			if entry.ProcessedAt.Before(cutoff) {
				delete(state.ledger, key)
				pruned++
			}
		}
		return nil
	})
	return pruned, err
}

type MemoryNotificationOutbox struct {
	store *MemoryStore
	inTx  bool
}

func (o *MemoryNotificationOutbox) Enqueue(ctx context.Context, cmd NotificationCommand) error {
	if strings.TrimSpace(cmd.ID) == "" || strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return fmt.Errorf("core: notification id and idempotency key are required")
	}
	return o.store.access(ctx, o.inTx, func(state *memoryState) error {
		if _, exists := state.outboxKeys[cmd.IdempotencyKey]; exists {
			return nil
		}
		if cmd.Status == "" {
			cmd.Status = NotificationStatusPending
		}
		cmd.Data = cloneFields(cmd.Data)
		state.outbox[cmd.ID] = cmd
		state.outboxOrder = append(state.outboxOrder, cmd.ID)
		state.outboxKeys[cmd.IdempotencyKey] = cmd.ID
		return nil
	})
}

func (o *MemoryNotificationOutbox) ClaimBatch(ctx context.Context, limit int) ([]NotificationCommand, error) {
	if limit <= 0 {
		limit = defaultNotificationBatchSize
	}
	var claimed []NotificationCommand
	err := o.store.access(ctx, o.inTx, func(state *memoryState) error {
		now := o.store.now()
		for _, id := range state.outboxOrder {
			if len(claimed) >= limit {
				break
			}
			cmd := state.outbox[id]
			if cmd.Status != NotificationStatusPending || cmd.NextAttemptAt.After(now) {
				continue
			}
			cmd.Status = NotificationStatusProcessing
			cmd.Attempts++
			state.outbox[id] = cmd
			claimed = append(claimed, cmd)
		}
		return nil
	})
	return claimed, err
}

func (o *MemoryNotificationOutbox) MarkSent(ctx context.Context, id string) error {
	return o.store.access(ctx, o.inTx, func(state *memoryState) error {
		cmd, ok := state.outbox[strings.TrimSpace(id)]
		if !ok {
			return fmt.Errorf("core: notification %q not found", id)
		}
		cmd.Status = NotificationStatusSent
		cmd.SentAt = o.store.now()
		cmd.LastError = ""
		state.outbox[cmd.ID] = cmd
		return nil
	})
}

func (o *MemoryNotificationOutbox) MarkFailed(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error {
	return o.store.access(ctx, o.inTx, func(state *memoryState) error {
		cmd, ok := state.outbox[strings.TrimSpace(id)]
		if !ok {
			return fmt.Errorf("core: notification %q not found", id)
		}
		if cause != nil {
			cmd.LastError = cause.Error()
		}
		if nextAttemptAt.IsZero() {
			cmd.Status = NotificationStatusFailed
		} else {
			cmd.Status = NotificationStatusPending
			cmd.NextAttemptAt = nextAttemptAt
		}
		state.outbox[cmd.ID] = cmd
		return nil
	})
}

// Commands returns a copy of every outbox row in insertion order.
func (o *MemoryNotificationOutbox) Commands() []NotificationCommand {
	var out []NotificationCommand
	_ = o.store.access(context.Background(), o.inTx, func(state *memoryState) error {
		for _, id := range state.outboxOrder {
			out = append(out, state.outbox[id])
		}
		return nil
	})
	return out
}
