package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// BookingStore persists bookings. A store returned by withTx runs every
// statement on that transaction.
type BookingStore struct {
	db   bun.IDB
	tx   *bun.Tx
	repo repository.Repository[*bookingRecord]
}

func NewBookingStore(db *bun.DB) (*BookingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*bookingRecord](db, bookingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid booking repository wiring: %w", err)
		}
	}
	return &BookingStore{db: db, repo: repo}, nil
}

func (s *BookingStore) withTx(tx bun.Tx) *BookingStore {
	return &BookingStore{db: tx, tx: &tx, repo: s.repo}
}

func (s *BookingStore) Get(ctx context.Context, id string) (core.Booking, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &bookingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Booking{}, core.NewBookingNotFoundError(
				fmt.Sprintf("sqlstore: booking %q not found", id),
				map[string]any{"booking_id": id},
			)
		}
		return core.Booking{}, err
	}
	return record.toDomain(), nil
}

// GetCurrent returns the newest booking for correlationKey.
func (s *BookingStore) GetCurrent(ctx context.Context, correlationKey string) (core.Booking, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	correlationKey = strings.TrimSpace(correlationKey)
	record := &bookingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.correlation_key = ?", correlationKey).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Booking{}, core.NewBookingNotFoundError(
				fmt.Sprintf("sqlstore: no booking for correlation key %q", correlationKey),
				map[string]any{"correlation_key": correlationKey},
			)
		}
		return core.Booking{}, err
	}
	return record.toDomain(), nil
}

func (s *BookingStore) Create(ctx context.Context, booking core.Booking) (core.Booking, error) {
	if s == nil || s.repo == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	if err := booking.Validate(); err != nil {
		return core.Booking{}, err
	}
	if booking.Version <= 0 {
		booking.Version = 1
	}
	record := newBookingRecord(booking, time.Now().UTC())

	var err error
	if s.tx != nil {
		_, err = s.repo.CreateTx(ctx, *s.tx, record)
	} else {
		_, err = s.repo.Create(ctx, record)
	}
	if err != nil {
		return core.Booking{}, err
	}
	return record.toDomain(), nil
}

// Update writes booking only while the stored version equals expectedVersion.
func (s *BookingStore) Update(ctx context.Context, booking core.Booking, expectedVersion int) (core.Booking, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	if err := booking.Validate(); err != nil {
		return core.Booking{}, err
	}
	updatedAt := booking.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	id := strings.TrimSpace(booking.ID)

	result, err := s.db.NewUpdate().
		Model((*bookingRecord)(nil)).
		Set("status = ?", string(booking.Status)).
		Set("client_email = ?", booking.ClientEmail).
		Set("client_name = ?", booking.ClientName).
		Set("starts_at = ?", timePointer(booking.StartsAt)).
		Set("ends_at = ?", timePointer(booking.EndsAt)).
		Set("requires_payment = ?", booking.RequiresPayment).
		Set("scheduling_ref = ?", booking.SchedulingRef).
		Set("payment_ref = ?", booking.PaymentRef).
		Set("cancellation_reason = ?", booking.CancellationReason).
		Set("payment_failure_reason = ?", booking.PaymentFailureReason).
		Set("version = ?", expectedVersion+1).
		Set("updated_at = ?", updatedAt).
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Booking{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Booking{}, err
	}
	if affected == 0 {
		stored, getErr := s.Get(ctx, id)
		if getErr != nil {
			return core.Booking{}, getErr
		}
		return core.Booking{}, core.NewConcurrentUpdateError(
			fmt.Sprintf("sqlstore: booking %q changed concurrently", id),
			map[string]any{"booking_id": id, "expected_version": expectedVersion, "stored_version": stored.Version},
		)
	}
	return s.Get(ctx, id)
}

func (s *BookingStore) List(ctx context.Context, filter core.BookingFilter) (core.BookingPage, error) {
	if s == nil || s.repo == nil {
		return core.BookingPage{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	filter = filter.Normalized()
	offset := filter.Offset()

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(filter.PerPage, offset),
	}
	if filter.CorrelationKey != "" {
		selectors = append(selectors, repository.SelectBy("correlation_key", "=", filter.CorrelationKey))
	}
	if filter.ClientID != "" {
		selectors = append(selectors, repository.SelectBy("client_id", "=", filter.ClientID))
	}
	if filter.BuilderID != "" {
		selectors = append(selectors, repository.SelectBy("builder_id", "=", filter.BuilderID))
	}
	if filter.Status != core.BookingStatusNone {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.BookingPage{}, err
	}
	items := make([]core.Booking, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.BookingPage{
		Items:   items,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}
