package stripe

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/webhooks"
)

const (
	ProviderID      = "stripe"
	SignatureHeader = "Stripe-Signature"
	// BookingRefMetadataKey is the checkout metadata key holding the booking reference.
	BookingRefMetadataKey = "booking_ref"
)

type Config struct {
	SigningSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{Tolerance: 5 * time.Minute}
}

func ConfigFromCore(cfg core.Config) Config {
	return Config{
		SigningSecret: cfg.Webhooks.Stripe.SigningSecret,
		Tolerance:     cfg.Webhooks.Stripe.Tolerance,
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
			Secret:    cfg.SigningSecret,
			Tolerance: cfg.Tolerance,
			Now:       cfg.Now,
		},
		Normalizer: webhooks.NormalizerFunc(Normalize),
	}
}

// Normalize maps checkout and payment intent events onto payment events.
func Normalize(req core.InboundRequest) (core.Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, core.NewNormalizationError("stripe: payload is not valid json", map[string]any{
			"provider_id": ProviderID,
			"cause":       err.Error(),
		})
	}

	eventType := strings.TrimSpace(envelope.Type)
	object := envelope.Data.Object
	base := core.EventEnvelope{
		Provider:        ProviderID,
		ExternalEventID: strings.TrimSpace(envelope.ID),
		CorrelationKey:  correlationKey(object),
	}
	if envelope.Created > 0 {
		base.OccurredAt = time.Unix(envelope.Created, 0).UTC()
	}

	var succeeded bool
	switch eventType {
	case EventCheckoutCompleted:
		if !strings.EqualFold(strings.TrimSpace(object.PaymentStatus), paymentStatusPaid) {
			// Delayed methods settle through the async_payment events.
			return core.Ignored{EventEnvelope: base, RawType: eventType}, nil
		}
		succeeded = true
	case EventCheckoutAsyncPaymentSucceeded, EventPaymentIntentSucceeded:
		succeeded = true
	case EventCheckoutAsyncPaymentFailed, EventPaymentIntentFailed:
	default:
		return core.Ignored{EventEnvelope: base, RawType: eventType}, nil
	}

	if base.CorrelationKey == "" {
		return nil, core.NewNormalizationError("stripe: booking reference is missing", map[string]any{
			"provider_id": ProviderID,
			"event_id":    base.ExternalEventID,
			"event_type":  eventType,
		})
	}

	paymentRef := object.paymentIntentID()
	if paymentRef == "" {
		paymentRef = strings.TrimSpace(object.ID)
	}
	if succeeded {
		return core.PaymentSucceeded{
			EventEnvelope: base,
			PaymentRef:    paymentRef,
			AmountMinor:   object.amount(),
			Currency:      strings.ToLower(strings.TrimSpace(object.Currency)),
		}, nil
	}
	return core.PaymentFailed{
		EventEnvelope: base,
		PaymentRef:    paymentRef,
		FailureReason: failureReason(object),
	}, nil
}

func correlationKey(object eventObject) string {
	if key := strings.TrimSpace(object.Metadata[BookingRefMetadataKey]); key != "" {
		return key
	}
	return strings.TrimSpace(object.ClientReferenceID)
}

func failureReason(object eventObject) string {
	if object.LastPaymentError == nil {
		return ""
	}
	if message := strings.TrimSpace(object.LastPaymentError.Message); message != "" {
		return message
	}
	if code := strings.TrimSpace(object.LastPaymentError.DeclineCode); code != "" {
		return code
	}
	return strings.TrimSpace(object.LastPaymentError.Code)
}
