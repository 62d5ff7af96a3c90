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

// OutboxStore holds notification commands written in the same transaction as
// the booking change that caused them.
type OutboxStore struct {
	db   bun.IDB
	repo repository.Repository[*notificationRecord]
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationRecord](db, notificationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo}, nil
}

func (s *OutboxStore) withTx(tx bun.Tx) *OutboxStore {
	return &OutboxStore{db: tx, repo: s.repo}
}

// Enqueue inserts cmd unless a row with the same idempotency key exists.
func (s *OutboxStore) Enqueue(ctx context.Context, cmd core.NotificationCommand) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if strings.TrimSpace(cmd.ID) == "" {
		return fmt.Errorf("sqlstore: notification id is required")
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return fmt.Errorf("sqlstore: notification idempotency key is required")
	}
	if strings.TrimSpace(string(cmd.Kind)) == "" {
		return fmt.Errorf("sqlstore: notification kind is required")
	}

	record := newNotificationRecord(cmd, time.Now().UTC())
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.NotificationCommand, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	query := `
WITH claimed AS (
	SELECT id
	FROM booking_notification_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY created_at ASC
	LIMIT ?
)
UPDATE booking_notification_outbox
SET status = ?, attempts = attempts + 1, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	kind,
	booking_id,
	correlation_key,
	recipient_email,
	recipient_name,
	data,
	idempotency_key,
	cause_provider,
	cause_event_id,
	status,
	attempts,
	last_error,
	next_attempt_at,
	sent_at,
	created_at,
	updated_at
`
	var records []notificationRecord
	err := s.db.NewRaw(
		query,
		string(core.NotificationStatusPending),
		now,
		limit,
		string(core.NotificationStatusProcessing),
		now,
		string(core.NotificationStatusPending),
	).Scan(ctx, &records)
	if err != nil {
		return nil, err
	}

	out := make([]core.NotificationCommand, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: notification id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*notificationRecord)(nil)).
		Set("status = ?", string(core.NotificationStatusSent)).
		Set("last_error = ?", "").
		Set("sent_at = ?", now).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: notification id is required")
	}
	status := core.NotificationStatusPending
	var next *time.Time
	if nextAttemptAt.IsZero() {
		status = core.NotificationStatusFailed
	} else {
		value := nextAttemptAt.UTC()
		next = &value
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*notificationRecord)(nil)).
		Set("status = ?", string(status)).
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListForBooking returns the commands issued for bookingID, oldest first.
func (s *OutboxStore) ListForBooking(ctx context.Context, bookingID string) ([]core.NotificationCommand, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("booking_id", "=", strings.TrimSpace(bookingID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.NotificationCommand, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
