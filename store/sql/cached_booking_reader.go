package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-bookings/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const bookingCacheKeyPrefix = "go-bookings::booking::v1"

// CachedBookingReader serves booking reads through a cache. Writes reach it
// only through Invalidate, so callers that change bookings wrap their
// reconciler with InvalidatingReconciler.
type CachedBookingReader struct {
	base  core.BookingReader
	cache repositorycache.CacheService
}

func NewCachedBookingReader(base core.BookingReader, cacheService repositorycache.CacheService) (*CachedBookingReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base booking reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: booking cache service is required")
	}
	return &CachedBookingReader{base: base, cache: cacheService}, nil
}

// BookingCacheKey returns go-bookings::booking::v1::<booking_id> with the id
// URL-path escaped.
func BookingCacheKey(bookingID string) (string, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return "", core.NewBadInputError("sqlstore: booking id is required", nil)
	}
	return bookingCacheKeyPrefix + "::" + url.PathEscape(bookingID), nil
}

func (r *CachedBookingReader) GetBooking(ctx context.Context, id string) (core.Booking, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: cached booking reader is not configured")
	}
	key, err := BookingCacheKey(id)
	if err != nil {
		return core.Booking{}, err
	}
	return repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (core.Booking, error) {
		return r.base.GetBooking(ctx, strings.TrimSpace(id))
	})
}

func (r *CachedBookingReader) ListBookings(ctx context.Context, filter core.BookingFilter) (core.BookingPage, error) {
	if r == nil || r.base == nil {
		return core.BookingPage{}, fmt.Errorf("sqlstore: cached booking reader is not configured")
	}
	return r.base.ListBookings(ctx, filter)
}

func (r *CachedBookingReader) ListBookingEvents(ctx context.Context, bookingID string) ([]core.ProcessedEvent, error) {
	if r == nil || r.base == nil {
		return nil, fmt.Errorf("sqlstore: cached booking reader is not configured")
	}
	return r.base.ListBookingEvents(ctx, bookingID)
}

func (r *CachedBookingReader) Invalidate(ctx context.Context, bookingID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached booking reader is not configured")
	}
	key, err := BookingCacheKey(bookingID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, key)
}

// InvalidatingReconciler evicts the cached booking after every committed
// reconcile that touched one.
func (r *CachedBookingReader) InvalidatingReconciler(next core.Reconciler) core.Reconciler {
	return invalidatingReconciler{next: next, reader: r}
}

type invalidatingReconciler struct {
	next   core.Reconciler
	reader *CachedBookingReader
}

func (i invalidatingReconciler) Reconcile(ctx context.Context, event core.Event) (core.ReconcileResult, error) {
	result, err := i.next.Reconcile(ctx, event)
	if err != nil {
		return result, err
	}
	if result.BookingID != "" && !result.Duplicate {
		if invalidateErr := i.reader.Invalidate(ctx, result.BookingID); invalidateErr != nil {
			return result, fmt.Errorf("sqlstore: evict booking %q: %w", result.BookingID, invalidateErr)
		}
	}
	return result, nil
}
