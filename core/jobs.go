package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	JobIDDispatchNotifications = "bookings.notifications.dispatch"
	JobIDPruneLedger           = "bookings.ledger.prune"
)

// PruneLedger deletes ledger entries older than the configured retention. A
// zero retention disables pruning.
func (s *Service) PruneLedger(ctx context.Context) (pruned int, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "prune_ledger", err, map[string]any{"pruned": pruned})
	}()
	if s == nil {
		return 0, fmt.Errorf("core: service is nil")
	}
	retention := s.config.Ledger.Retention
	if retention <= 0 {
		return 0, nil
	}
	if s.ledgerPruner == nil {
		return 0, fmt.Errorf("core: ledger pruner is not configured")
	}
	return s.ledgerPruner.PruneBefore(ctx, s.now().Add(-retention))
}

// ExecuteJob runs one housekeeping job by id. Parameters are optional; the
// dispatch job honours "batch_size".
func (s *Service) ExecuteJob(ctx context.Context, msg JobExecutionMessage) error {
	switch strings.TrimSpace(msg.JobID) {
	case JobIDDispatchNotifications:
		_, err := s.DispatchNotifications(ctx, intParameter(msg.Parameters, "batch_size"))
		return err
	case JobIDPruneLedger:
		_, err := s.PruneLedger(ctx)
		return err
	default:
		return NewBadInputError(fmt.Sprintf("core: unknown job %q", msg.JobID), map[string]any{"job_id": msg.JobID})
	}
}

func intParameter(params map[string]any, key string) int {
	if len(params) == 0 {
		return 0
	}
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}
