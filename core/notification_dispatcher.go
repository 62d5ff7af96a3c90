package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

type NotificationDispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultNotificationDispatcherConfig() NotificationDispatcherConfig {
	return NotificationDispatcherConfig{
		BatchSize:      defaultNotificationBatchSize,
		MaxAttempts:    defaultNotificationAttempts,
		InitialBackoff: defaultNotificationBackoff,
		MaxBackoff:     defaultNotificationMaxWait,
	}
}

// NotificationDispatcher relays committed outbox commands to the sender. A
// command leaves the pending set when claimed, so a crash between claim and
// acknowledgement never produces a second send.
type NotificationDispatcher struct {
	outbox NotificationOutbox
	sender NotificationSender
	config NotificationDispatcherConfig
	now    func() time.Time
}

func NewNotificationDispatcher(
	outbox NotificationOutbox,
	sender NotificationSender,
	config NotificationDispatcherConfig,
) (*NotificationDispatcher, error) {
	if outbox == nil {
		return nil, fmt.Errorf("core: notification outbox is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("core: notification sender is required")
	}
	defaults := DefaultNotificationDispatcherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &NotificationDispatcher{
		outbox: outbox,
		sender: sender,
		config: config,
		now:    utcNow,
	}, nil
}

func (d *NotificationDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.outbox == nil || d.sender == nil {
		return DispatchStats{}, fmt.Errorf("core: notification dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}
	commands, err := d.outbox.ClaimBatch(ctx, limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(commands)}
	var dispatchErr error
	for _, cmd := range commands {
		if err := d.sender.Send(ctx, cmd); err != nil {
			sendErr := fmt.Errorf("core: %s for booking %q failed: %w", cmd.Kind, cmd.BookingID, err)
			retry := cmd.Attempts < d.config.MaxAttempts
			if markErr := d.markFailed(ctx, cmd, sendErr, retry); markErr != nil {
				dispatchErr = joinErrors(dispatchErr, markErr)
			}
			if retry {
				stats.Retried++
			} else {
				stats.Failed++
			}
			dispatchErr = joinErrors(dispatchErr, sendErr)
			continue
		}
		if err := d.outbox.MarkSent(ctx, strings.TrimSpace(cmd.ID)); err != nil {
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		stats.Sent++
	}
	return stats, dispatchErr
}

func (d *NotificationDispatcher) markFailed(ctx context.Context, cmd NotificationCommand, cause error, retry bool) error {
	if !retry {
		return d.outbox.MarkFailed(ctx, strings.TrimSpace(cmd.ID), cause, time.Time{})
	}
	nextAttemptAt := d.now().Add(d.nextBackoffDelay(cmd.Attempts))
	return d.outbox.MarkFailed(ctx, strings.TrimSpace(cmd.ID), cause, nextAttemptAt)
}

func (d *NotificationDispatcher) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(d.config.InitialBackoff)
	next := time.Duration(base * math.Pow(2, float64(attempt-1)))
	if next < 0 || next > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return next
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

// DispatchNotifications relays up to batchSize pending commands through the
// configured sender.
func (s *Service) DispatchNotifications(ctx context.Context, batchSize int) (stats DispatchStats, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "dispatch_notifications", err, map[string]any{
			"claimed": stats.Claimed,
			"sent":    stats.Sent,
			"retried": stats.Retried,
			"failed":  stats.Failed,
		})
		if stats.Failed > 0 {
			s.recordCounter(ctx, MetricNotificationsFailed, int64(stats.Failed), nil)
		}
	}()
	if s == nil {
		return DispatchStats{}, fmt.Errorf("core: service is nil")
	}
	dispatcher, err := NewNotificationDispatcher(s.outbox, s.sender, NotificationDispatcherConfig{
		BatchSize:      s.config.Notifications.BatchSize,
		MaxAttempts:    s.config.Notifications.MaxAttempts,
		InitialBackoff: s.config.Notifications.InitialBackoff,
		MaxBackoff:     s.config.Notifications.MaxBackoff,
	})
	if err != nil {
		return DispatchStats{}, err
	}
	dispatcher.now = s.now
	return dispatcher.DispatchPending(ctx, batchSize)
}
