package transport

import (
	"context"

	"github.com/goliatone/go-bookings/core"
	glog "github.com/goliatone/go-logger/glog"
)

const KindLog = "log"

// LogSender records notification commands in the log instead of delivering
// them. It backs local runs where no dispatcher is configured.
type LogSender struct {
	Logger core.Logger
}

func NewLogSender(logger core.Logger) *LogSender {
	return &LogSender{Logger: glog.Ensure(logger)}
}

func (*LogSender) Kind() string {
	return KindLog
}

func (s *LogSender) Send(ctx context.Context, cmd core.NotificationCommand) error {
	logger := glog.Ensure(s.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("notification command",
		"notification_id", cmd.ID,
		"kind", string(cmd.Kind),
		"booking_id", cmd.BookingID,
		"correlation_key", cmd.CorrelationKey,
		"idempotency_key", cmd.IdempotencyKey,
		"routing_key", RoutingKey(cmd.Kind),
	)
	return nil
}

var _ core.NotificationSender = (*LogSender)(nil)
