package inbound_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
	"github.com/goliatone/go-bookings/providers"
	"github.com/goliatone/go-bookings/providers/calendly"
	"github.com/goliatone/go-bookings/providers/stripe"
	"github.com/goliatone/go-bookings/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	router http.Handler
	svc    *core.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
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
	router := inbound.NewRouter(inbound.Config{
		Processor:   webhooks.NewProcessor(registry, svc),
		Reader:      svc,
		ErrorMapper: svc.MapError,
		Metrics:     promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	})
	return harness{router: router, svc: svc}
}

func (h harness) do(method string, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

var (
	bookedBody = []byte(`{"event":"invitee.created","created_at":"2026-03-01T12:00:00Z","payload":{"uri":"https://api.calendly.com/scheduled_events/E/invitees/I","email":"c@example.com","tracking":{"utm_content":"bk_http","utm_campaign":"mentoring"}}}`)
	paidBody   = []byte(`{"id":"evt_http","type":"payment_intent.succeeded","created":1772366400,"data":{"object":{"id":"pi_http","metadata":{"booking_ref":"bk_http"}}}}`)
)

func TestWebhookThenReadBooking(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()

	rec := h.do(http.MethodPost, "/webhooks/calendly", bookedBody, map[string]string{
		calendly.SignatureHeader: webhooks.SignTimestamped("cal_key", now, bookedBody),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected booking accepted, got %d %s", rec.Code, rec.Body.String())
	}
	result := decode(t, rec)["result"].(map[string]any)
	bookingID, _ := result["booking_id"].(string)
	if bookingID == "" {
		t.Fatalf("expected booking id in result, got %#v", result)
	}

	rec = h.do(http.MethodPost, "/webhooks/stripe", paidBody, map[string]string{
		stripe.SignatureHeader: webhooks.SignTimestamped("whsec_key", now, paidBody),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected payment accepted, got %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(http.MethodGet, "/bookings/"+bookingID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected booking read, got %d", rec.Code)
	}
	booking := decode(t, rec)
	if booking["status"] != string(core.BookingStatusConfirmed) || booking["payment_ref"] != "pi_http" {
		t.Fatalf("expected confirmed booking, got %#v", booking)
	}

	rec = h.do(http.MethodGet, "/bookings/"+bookingID+"/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected events read, got %d", rec.Code)
	}
	if items := decode(t, rec)["items"].([]any); len(items) != 2 {
		t.Fatalf("expected two processed events, got %d", len(items))
	}

	rec = h.do(http.MethodGet, "/bookings?correlation_key=bk_http&status=confirmed", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected list, got %d %s", rec.Code, rec.Body.String())
	}
	if total := decode(t, rec)["total"].(float64); total != 1 {
		t.Fatalf("expected one listed booking, got %v", total)
	}
}

func TestWebhookRejections(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()

	rec := h.do(http.MethodPost, "/webhooks/stripe", paidBody, map[string]string{
		stripe.SignatureHeader: webhooks.SignTimestamped("wrong", now, paidBody),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	errBody := decode(t, rec)["error"].(map[string]any)
	if errBody["text_code"] != core.BookingErrorSignatureMismatch {
		t.Fatalf("expected signature mismatch code, got %#v", errBody)
	}

	// Payment for a booking that does not exist yet is retried by the provider.
	rec = h.do(http.MethodPost, "/webhooks/stripe", paidBody, map[string]string{
		stripe.SignatureHeader: webhooks.SignTimestamped("whsec_key", now, paidBody),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unknown booking, got %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(http.MethodPost, "/webhooks/paypal", []byte(`{}`), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}
}

func TestReadErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/bookings/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing booking, got %d", rec.Code)
	}
	rec = h.do(http.MethodGet, "/bookings?page=-1", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
	rec = h.do(http.MethodGet, "/bookings?status=unknown", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	if rec := h.do(http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}

	unhealthy := inbound.NewRouter(inbound.Config{Health: func(context.Context) error { return errors.New("db down") }})
	rec := httptest.NewRecorder()
	unhealthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("expected 503 with cause, got %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	unhealthy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected webhook route to be absent without a processor, got %d", rec.Code)
	}
}
