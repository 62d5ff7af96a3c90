package providers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/providers"
	"github.com/goliatone/go-bookings/providers/calendly"
	"github.com/goliatone/go-bookings/providers/stripe"
	"github.com/goliatone/go-bookings/webhooks"
)

func TestNewRegistry_RegistersBuiltins(t *testing.T) {
	registry, err := providers.NewRegistry(core.DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, id := range []string{calendly.ProviderID, stripe.ProviderID} {
		if _, ok := registry.Lookup(id); !ok {
			t.Fatalf("expected %s to be registered", id)
		}
	}
	if _, err := providers.NewRegistry(core.DefaultConfig(), stripe.New(stripe.Config{})); err == nil {
		t.Fatalf("expected duplicate stripe template to be rejected")
	}
}

// Booking then payment through signed deliveries confirms the booking once.
func TestBuiltins_SignedFlowConfirmsBooking(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhooks.Calendly.SigningKey = "cal_key"
	cfg.Webhooks.Stripe.SigningSecret = "whsec_key"

	svc, err := core.NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	registry, err := providers.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	processor := webhooks.NewProcessor(registry, svc)
	now := time.Now().UTC()

	booked := []byte(`{"event":"invitee.created","created_at":"2026-03-01T12:00:00Z","payload":{"uri":"https://api.calendly.com/scheduled_events/E/invitees/I","email":"c@example.com","tracking":{"utm_content":"bk_flow","utm_source":"b1","utm_medium":"c1","utm_campaign":"mentoring"}}}`)
	paid := []byte(`{"id":"evt_flow","type":"payment_intent.succeeded","created":1772366400,"data":{"object":{"id":"pi_flow","metadata":{"booking_ref":"bk_flow"}}}}`)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		ProviderID: calendly.ProviderID,
		Headers:    map[string]string{calendly.SignatureHeader: webhooks.SignTimestamped("cal_key", now, booked)},
		Body:       booked,
	})
	if err != nil || result.StatusCode != http.StatusOK {
		t.Fatalf("expected booking accepted, got %+v %v", result, err)
	}
	result, err = processor.Process(context.Background(), core.InboundRequest{
		ProviderID: stripe.ProviderID,
		Headers:    map[string]string{stripe.SignatureHeader: webhooks.SignTimestamped("whsec_key", now, paid)},
		Body:       paid,
	})
	if err != nil || result.Metadata["outcome"] != string(core.OutcomeApplied) {
		t.Fatalf("expected payment applied, got %+v %v", result, err)
	}

	page, err := svc.ListBookings(context.Background(), core.BookingFilter{CorrelationKey: "bk_flow"})
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("expected one booking, got %+v %v", page, err)
	}
	if page.Items[0].Status != core.BookingStatusConfirmed {
		t.Fatalf("expected confirmed booking, got %s", page.Items[0].Status)
	}
}
