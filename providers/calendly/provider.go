package calendly

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/webhooks"
)

const (
	ProviderID      = "calendly"
	SignatureHeader = "Calendly-Webhook-Signature"
)

type Config struct {
	SigningKey string
	Tolerance  time.Duration
	// FreeSessionTypes lists session type ids that confirm without a payment.
	FreeSessionTypes []string
	Now              func() time.Time
}

func DefaultConfig() Config {
	return Config{Tolerance: 5 * time.Minute}
}

// ConfigFromCore picks the Calendly settings out of the service config.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		SigningKey:       cfg.Webhooks.Calendly.SigningKey,
		Tolerance:        cfg.Webhooks.Calendly.Tolerance,
		FreeSessionTypes: append([]string(nil), cfg.Reconciliation.FreeSessionTypes...),
	}
}

func New(cfg Config) webhooks.ProviderWebhookTemplate {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	return webhooks.ProviderWebhookTemplate{
		ProviderID: ProviderID,
		Verifier: webhooks.TimestampedHMACVerifier{
			Header:    SignatureHeader,
			Secret:    cfg.SigningKey,
			Tolerance: cfg.Tolerance,
			Now:       cfg.Now,
		},
		Normalizer: Normalizer{FreeSessionTypes: cfg.FreeSessionTypes},
	}
}

// Normalizer maps invitee webhooks onto session events. The booking flow
// encodes the booking reference and parties in the scheduling link's UTM
// parameters.
type Normalizer struct {
	FreeSessionTypes []string
}

func (n Normalizer) Normalize(req core.InboundRequest) (core.Event, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, core.NewNormalizationError("calendly: payload is not valid json", map[string]any{
			"provider_id": ProviderID,
			"cause":       err.Error(),
		})
	}

	eventType := strings.TrimSpace(envelope.Event)
	payload := envelope.Payload
	base := core.EventEnvelope{
		Provider:        ProviderID,
		ExternalEventID: externalEventID(eventType, payload.URI),
		CorrelationKey:  strings.TrimSpace(payload.Tracking.UTMContent),
		OccurredAt:      parseTime(envelope.CreatedAt),
	}

	switch eventType {
	case EventInviteeCreated, EventInviteeCanceled:
	default:
		if base.ExternalEventID == "" {
			base.ExternalEventID = eventType
		}
		return core.Ignored{EventEnvelope: base, RawType: eventType}, nil
	}

	if strings.TrimSpace(payload.URI) == "" {
		return nil, core.NewNormalizationError("calendly: invitee uri is missing", map[string]any{
			"provider_id": ProviderID,
			"event_type":  eventType,
		})
	}
	if base.CorrelationKey == "" {
		return nil, core.NewNormalizationError("calendly: tracking.utm_content booking reference is missing", map[string]any{
			"provider_id": ProviderID,
			"event_id":    base.ExternalEventID,
			"event_type":  eventType,
		})
	}

	if eventType == EventInviteeCanceled {
		reason := ""
		if payload.Cancellation != nil {
			reason = strings.TrimSpace(payload.Cancellation.Reason)
		}
		if reason == "" && payload.Rescheduled {
			reason = "rescheduled"
		}
		return core.SessionCanceled{
			EventEnvelope: base,
			SchedulingRef: strings.TrimSpace(payload.URI),
			Reason:        reason,
		}, nil
	}

	sessionType := strings.TrimSpace(payload.Tracking.UTMCampaign)
	return core.SessionBooked{
		EventEnvelope:   base,
		SchedulingRef:   strings.TrimSpace(payload.URI),
		ClientID:        strings.TrimSpace(payload.Tracking.UTMMedium),
		BuilderID:       strings.TrimSpace(payload.Tracking.UTMSource),
		SessionTypeID:   sessionType,
		ClientEmail:     strings.TrimSpace(payload.Email),
		ClientName:      strings.TrimSpace(payload.Name),
		StartsAt:        parseTime(payload.ScheduledEvent.StartTime),
		EndsAt:          parseTime(payload.ScheduledEvent.EndTime),
		RequiresPayment: !n.isFree(sessionType),
	}, nil
}

func (n Normalizer) isFree(sessionType string) bool {
	cfg := core.Config{Reconciliation: core.ReconciliationConfig{FreeSessionTypes: n.FreeSessionTypes}}
	return cfg.IsFreeSessionType(sessionType)
}

// Calendly has no delivery id; the event name plus invitee uri is stable
// across redeliveries of the same notification.
func externalEventID(eventType string, inviteeURI string) string {
	eventType = strings.TrimSpace(eventType)
	inviteeURI = strings.TrimSpace(inviteeURI)
	if eventType == "" || inviteeURI == "" {
		return ""
	}
	return eventType + ":" + inviteeURI
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
