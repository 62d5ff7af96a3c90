package stripe

import (
	"encoding/json"
	"strings"
)

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventPaymentIntentSucceeded        = "payment_intent.succeeded"
	EventPaymentIntentFailed           = "payment_intent.payment_failed"

	paymentStatusPaid = "paid"
)

type eventEnvelope struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    eventData `json:"data"`
}

type eventData struct {
	Object eventObject `json:"object"`
}

// eventObject covers the checkout session and payment intent fields the
// normalizer reads. Both object kinds share the envelope.
type eventObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	AmountTotal       int64             `json:"amount_total"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	LastPaymentError  *paymentError     `json:"last_payment_error"`
}

type paymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// paymentIntentID reads payment_intent as either an id string or an
// expanded object.
func (o eventObject) paymentIntentID() string {
	raw := strings.TrimSpace(string(o.PaymentIntent))
	if raw == "" || raw == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(o.PaymentIntent, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(o.PaymentIntent, &expanded); err == nil {
		return strings.TrimSpace(expanded.ID)
	}
	return ""
}

func (o eventObject) amount() int64 {
	if o.AmountTotal != 0 {
		return o.AmountTotal
	}
	return o.Amount
}
