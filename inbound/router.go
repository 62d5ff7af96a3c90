package inbound

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-bookings/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultMaxBodyBytes int64 = 1 << 20

// WebhookProcessor runs one raw delivery through verification, normalization
// and reconciliation. *webhooks.Processor satisfies it.
type WebhookProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Processor WebhookProcessor
	Reader    core.BookingReader
	// ErrorMapper normalizes errors into the rich envelope; usually Service.MapError.
	ErrorMapper  func(error) error
	Logger       core.Logger
	Metrics      http.Handler
	Health       HealthCheck
	MaxBodyBytes int64
}

type server struct {
	cfg    Config
	logger core.Logger
}

// NewRouter builds the gin engine serving webhooks, booking reads, health and
// metrics. Routes whose dependency is nil are not mounted.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &server{cfg: cfg, logger: glog.Ensure(cfg.Logger)}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())

	engine.GET("/healthz", s.health)
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if cfg.Processor != nil {
		engine.POST("/webhooks/:provider", s.webhook)
	}
	if cfg.Reader != nil {
		bookings := engine.Group("/bookings")
		bookings.GET("", s.listBookings)
		bookings.GET("/:id", s.getBooking)
		bookings.GET("/:id/events", s.listBookingEvents)
	}
	return engine
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
}

func (s *server) health(c *gin.Context) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		renderError(c, nil, inboundBadInput("inbound: webhook body is unreadable or too large", nil), http.StatusRequestEntityTooLarge)
		return
	}
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		headers[key] = strings.Join(values, ",")
	}

	result, err := s.cfg.Processor.Process(c.Request.Context(), core.InboundRequest{
		ProviderID: c.Param("provider"),
		Headers:    headers,
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": c.ClientIP(),
		},
	})
	if err != nil {
		status := result.StatusCode
		if status < 400 {
			status = 0
		}
		renderError(c, s.cfg.ErrorMapper, err, status)
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"accepted": result.Accepted, "result": result.Metadata})
}

func (s *server) getBooking(c *gin.Context) {
	booking, err := s.cfg.Reader.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(booking))
}

func (s *server) listBookings(c *gin.Context) {
	filter := core.BookingFilter{
		CorrelationKey: strings.TrimSpace(c.Query("correlation_key")),
		ClientID:       strings.TrimSpace(c.Query("client_id")),
		BuilderID:      strings.TrimSpace(c.Query("builder_id")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := core.ParseBookingStatus(raw)
		if err != nil {
			renderError(c, nil, inboundBadInput("inbound: invalid status filter", map[string]any{"status": raw}), 0)
			return
		}
		filter.Status = status
	}
	var ok bool
	if filter.Page, ok = s.intQuery(c, "page"); !ok {
		return
	}
	if filter.PerPage, ok = s.intQuery(c, "per_page"); !ok {
		return
	}

	page, err := s.cfg.Reader.ListBookings(c.Request.Context(), filter)
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	items := make([]bookingResponse, 0, len(page.Items))
	for _, booking := range page.Items {
		items = append(items, newBookingResponse(booking))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"page":     page.Page,
		"per_page": page.PerPage,
		"total":    page.Total,
		"has_next": page.HasNext,
	})
}

func (s *server) listBookingEvents(c *gin.Context) {
	bookingID := c.Param("id")
	if _, err := s.cfg.Reader.GetBooking(c.Request.Context(), bookingID); err != nil {
		s.renderReadError(c, err)
		return
	}
	events, err := s.cfg.Reader.ListBookingEvents(c.Request.Context(), bookingID)
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	items := make([]processedEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, newProcessedEventResponse(event))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// renderReadError maps a missing booking to 404. The same error is a 409 on
// the webhook path, where it asks the provider to retry.
func (s *server) renderReadError(c *gin.Context, err error) {
	status := 0
	if core.IsBookingNotFoundError(err) {
		status = http.StatusNotFound
	}
	renderError(c, s.cfg.ErrorMapper, err, status)
}

func (s *server) intQuery(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		renderError(c, nil, inboundBadInput("inbound: "+key+" must be a non-negative integer", map[string]any{key: raw}), 0)
		return 0, false
	}
	return value, true
}
