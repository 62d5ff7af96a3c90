package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

// Verifier checks the authenticity of a raw delivery. It fails closed: any
// malformed, missing or mismatched signature yields false. An error is
// returned only when verification cannot be attempted at all, which is an
// AuthenticityError when the secret is not configured.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) (bool, error)
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) (bool, error) {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return false, missingSecretError(req.ProviderID, v.Header)
	}
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return false, nil
	}

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return false, nil
	}
	return hmac.Equal(decoded, computeHMAC(secret, req.Body)), nil
}

// TimestampedHMACVerifier checks headers shaped "t=<unix>,v1=<hex>[,v1=<hex>]"
// signed as HMAC-SHA256 over "<t>.<body>". Calendly and Stripe both use it.
type TimestampedHMACVerifier struct {
	Header    string
	Secret    string
	Scheme    string
	Tolerance time.Duration
	Now       func() time.Time
}

func (v TimestampedHMACVerifier) Verify(_ context.Context, req core.InboundRequest) (bool, error) {
	if strings.TrimSpace(v.Secret) == "" {
		return false, missingSecretError(req.ProviderID, v.Header)
	}
	return VerifyTimestamped(req.Body, headerValue(req.Headers, v.Header), v.Secret, TimestampOptions{
		Scheme:    v.Scheme,
		Tolerance: v.Tolerance,
		Now:       v.now(),
	})
}

type TimestampOptions struct {
	// Scheme names the signature entries to check; defaults to "v1".
	Scheme string
	// Tolerance bounds the age of the signed timestamp; zero disables the check.
	Tolerance time.Duration
	Now       time.Time
}

// VerifyTimestamped checks a "t=...,v1=..." signature header against body.
// It returns false for any header that does not verify and an
// AuthenticityError only when secret is empty.
func VerifyTimestamped(body []byte, signatureHeader string, secret string, opts TimestampOptions) (bool, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, core.NewAuthenticityError("webhooks: signing secret is not configured", nil)
	}
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return false, nil
	}

	scheme := strings.TrimSpace(opts.Scheme)
	if scheme == "" {
		scheme = "v1"
	}
	timestamp, signatures := parseTimestampedHeader(header, scheme)
	if timestamp == "" || len(signatures) == 0 {
		return false, nil
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, nil
	}
	if opts.Tolerance > 0 {
		now := opts.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		delta := now.Sub(time.Unix(unix, 0).UTC())
		if delta < 0 {
			delta = -delta
		}
		if delta > opts.Tolerance {
			return false, nil
		}
	}

	expected := computeHMAC(secret, signedPayload(timestamp, body))
	for _, candidate := range signatures {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true, nil
		}
	}
	return false, nil
}

func (v TimestampedHMACVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// SignTimestamped builds a "t=...,v1=..." header value for body. Senders of
// test fixtures and local replays use it.
func SignTimestamped(secret string, at time.Time, body []byte) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := computeHMAC(strings.TrimSpace(secret), signedPayload(timestamp, body))
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac)
}

func parseTimestampedHeader(header string, scheme string) (string, []string) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == "t":
			timestamp = value
		case key == scheme && value != "":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

func signedPayload(timestamp string, body []byte) []byte {
	payload := make([]byte, 0, len(timestamp)+1+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, '.')
	return append(payload, body...)
}

func computeHMAC(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

func missingSecretError(providerID string, header string) error {
	return core.NewAuthenticityError(
		fmt.Sprintf("webhooks: signing secret for %s is not configured", strings.TrimSpace(providerID)),
		map[string]any{
			"provider_id": strings.TrimSpace(providerID),
			"header":      strings.TrimSpace(header),
		},
	)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
