package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Processor runs one webhook delivery through verify, normalize and
// reconcile. Success is reported only after the reconciler committed.
type Processor struct {
	Registry   *Registry
	Reconciler core.Reconciler
	Metrics    core.MetricsRecorder
	Logger     core.Logger
	Now        func() time.Time
}

func NewProcessor(registry *Registry, reconciler core.Reconciler) *Processor {
	return &Processor{
		Registry:   registry,
		Reconciler: reconciler,
		Metrics:    core.NopMetricsRecorder{},
		Logger:     glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Registry == nil || p.Reconciler == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires registry and reconciler")
	}

	providerID := normalizeProviderID(req.ProviderID)
	req.ProviderID = providerID
	template, ok := p.Registry.Lookup(providerID)
	if !ok {
		err := core.NewProviderNotFoundError(
			fmt.Sprintf("webhooks: provider %q is not registered", providerID),
			map[string]any{"provider_id": providerID},
		)
		return p.reject(ctx, providerID, "unknown_provider", err), err
	}

	verified, err := template.Verifier.Verify(ctx, req)
	if err != nil {
		p.logger(ctx).Error("webhook verification unavailable", "provider_id", providerID, "error", err.Error())
		return p.reject(ctx, providerID, "verification_unavailable", err), err
	}
	if !verified {
		p.count(ctx, core.MetricWebhookSignatureRejected, providerID, "")
		mismatch := core.NewSignatureMismatchError(
			fmt.Sprintf("webhooks: %s signature verification failed", providerID),
			map[string]any{"provider_id": providerID},
		)
		p.logger(ctx).Warn("webhook signature rejected", "provider_id", providerID)
		return p.reject(ctx, providerID, "signature_mismatch", mismatch), mismatch
	}

	event, err := template.Normalizer.Normalize(req)
	if err != nil {
		return p.reject(ctx, providerID, "normalization_failed", err), err
	}

	reconciled, err := p.Reconciler.Reconcile(ctx, event)
	if err != nil {
		return p.reject(ctx, providerID, "reconcile_failed", err), err
	}

	envelope := event.Envelope()
	metadata := map[string]any{
		"provider_id":  providerID,
		"event_id":     envelope.ExternalEventID,
		"event_kind":   string(event.Kind()),
		"outcome":      string(reconciled.Outcome),
		"processed_at": p.now(),
	}
	if reconciled.BookingID != "" {
		metadata["booking_id"] = reconciled.BookingID
	}
	if reconciled.Duplicate {
		metadata["deduped"] = true
	}
	if reconciled.Ignored {
		metadata["ignored"] = true
	}
	p.count(ctx, core.MetricWebhookAccepted, providerID, string(event.Kind()))
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

func (p *Processor) reject(ctx context.Context, providerID string, reason string, err error) core.InboundResult {
	p.count(ctx, core.MetricWebhookRejected, providerID, reason)
	return core.InboundResult{
		Accepted:   false,
		StatusCode: core.HTTPStatus(err),
		Metadata: map[string]any{
			"provider_id": providerID,
			"rejected":    true,
			"reason":      reason,
		},
	}
}

func (p *Processor) count(ctx context.Context, name string, providerID string, detail string) {
	if p.Metrics == nil {
		return
	}
	tags := map[string]string{"provider_id": providerID}
	if strings.TrimSpace(detail) != "" {
		tags["detail"] = detail
	}
	p.Metrics.IncCounter(ctx, name, 1, tags)
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) logger(ctx context.Context) core.Logger {
	logger := glog.Ensure(p.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	return logger
}
