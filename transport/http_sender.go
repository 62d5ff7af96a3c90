package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	goerrors "github.com/goliatone/go-errors"
)

const KindHTTP = "http"

const IdempotencyKeyHeader = "Idempotency-Key"

const defaultHTTPClientTimeout = 30 * time.Second
const defaultHTTPResponseBodyLimit int64 = 1 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSender posts notification commands as JSON to the dispatcher endpoint.
// Any non-2xx response is a failed delivery.
type HTTPSender struct {
	Client               HTTPDoer
	Endpoint             string
	DefaultHeaders       map[string]string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

func NewHTTPSender(endpoint string, client HTTPDoer) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPClientTimeout}
	}
	return &HTTPSender{
		Client:               client,
		Endpoint:             strings.TrimSpace(endpoint),
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultHTTPResponseBodyLimit,
	}
}

func (*HTTPSender) Kind() string {
	return KindHTTP
}

func (s *HTTPSender) Send(ctx context.Context, cmd core.NotificationCommand) error {
	if s == nil || s.Client == nil {
		return transportError(
			"transport: http sender requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"sender": KindHTTP},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	parsedURL, err := url.Parse(strings.TrimSpace(s.Endpoint))
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid dispatcher endpoint",
			http.StatusBadRequest,
			map[string]any{"sender": KindHTTP, "endpoint": strings.TrimSpace(s.Endpoint)},
		)
	}

	body, err := encodePayload(cmd)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryBadInput, "transport: encode notification", http.StatusBadRequest,
			map[string]any{"sender": KindHTTP, "notification_id": cmd.ID})
	}

	requestCtx := ctx
	cancel := func() {}
	if s.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, s.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, parsedURL.String(), bytes.NewReader(body))
	if err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"sender": KindHTTP, "endpoint": parsedURL.String()},
		)
	}
	for key, value := range s.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(IdempotencyKeyHeader, strings.TrimSpace(cmd.IdempotencyKey))

	httpRes, err := s.Client.Do(httpReq)
	if err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"sender": KindHTTP, "endpoint": parsedURL.String()},
		)
	}
	defer httpRes.Body.Close()

	limit := s.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultHTTPResponseBodyLimit
	}
	responseBody, _ := io.ReadAll(io.LimitReader(httpRes.Body, limit))
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return transportError(
			fmt.Sprintf("transport: dispatcher responded with status %d", httpRes.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"sender":        KindHTTP,
				"status_code":   httpRes.StatusCode,
				"response_body": strings.TrimSpace(string(responseBody)),
			},
		)
	}
	return nil
}

var _ core.NotificationSender = (*HTTPSender)(nil)
