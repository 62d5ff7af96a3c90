package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// LedgerStore is the processed-event ledger keyed by (provider, external_event_id).
type LedgerStore struct {
	db   bun.IDB
	repo repository.Repository[*processedEventRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processedEventRecord](db, processedEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ledger repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

func (s *LedgerStore) withTx(tx bun.Tx) *LedgerStore {
	return &LedgerStore{db: tx, repo: s.repo}
}

func (s *LedgerStore) HasProcessed(ctx context.Context, provider string, externalEventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	return s.db.NewSelect().
		Model((*processedEventRecord)(nil)).
		Where("?TableAlias.provider = ?", strings.TrimSpace(provider)).
		Where("?TableAlias.external_event_id = ?", strings.TrimSpace(externalEventID)).
		Exists(ctx)
}

// RecordProcessed inserts entry. The insert skips on conflict so a duplicate
// does not abort the surrounding transaction before the caller rolls it back.
func (s *LedgerStore) RecordProcessed(ctx context.Context, entry core.ProcessedEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	record := newProcessedEventRecord(entry, time.Now().UTC())
	result, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider, external_event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateEventError(record)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return duplicateEventError(record)
	}
	return nil
}

func (s *LedgerStore) ListForBooking(ctx context.Context, bookingID string) ([]core.ProcessedEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("booking_id", "=", strings.TrimSpace(bookingID)),
		repository.OrderBy("processed_at ASC"),
		repository.OrderBy("external_event_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ProcessedEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LedgerStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*processedEventRecord)(nil)).
		Where("processed_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func duplicateEventError(record *processedEventRecord) error {
	return core.NewDuplicateKeyError("sqlstore: event already processed", map[string]any{
		"provider_id": record.Provider,
		"event_id":    record.ExternalEventID,
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
