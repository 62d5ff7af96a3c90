package core

import "context"

// Counter names shared by the reconciler, the notification relay and the
// webhook processor. Per-operation counters and histograms are derived from
// the operation name in observeOperation.
const (
	MetricWebhookAccepted          = "bookings.webhook.accepted.total"
	MetricWebhookRejected          = "bookings.webhook.rejected.total"
	MetricWebhookSignatureRejected = "bookings.webhook.signature_rejected.total"
	MetricPaymentAfterCancellation = "bookings.payment_after_cancellation.total"
	MetricNotificationsFailed      = "bookings.notifications.failed.total"
)

// NopMetricsRecorder discards every sample. NewService and NewProcessor use
// it until a recorder is configured.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
