package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const KindAMQP = "amqp"

const DefaultNotificationExchange = "bookings.notifications"

// Publisher is the subset of *amqp.Channel the sender needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes notification commands to a topic exchange. MessageId
// carries the idempotency key so consumers can drop redeliveries.
type AMQPSender struct {
	publisher Publisher
	exchange  string
	closers   []func() error
}

func NewAMQPSender(publisher Publisher, exchange string) *AMQPSender {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultNotificationExchange
	}
	return &AMQPSender{publisher: publisher, exchange: exchange}
}

// DialAMQP connects to url, declares the durable topic exchange and returns a
// sender owning the connection.
func DialAMQP(url string, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("transport: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: open channel: %w", err)
	}
	sender := NewAMQPSender(ch, exchange)
	if err := ch.ExchangeDeclare(sender.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("transport: declare exchange: %w", err)
	}
	sender.closers = []func() error{ch.Close, conn.Close}
	return sender, nil
}

func (*AMQPSender) Kind() string {
	return KindAMQP
}

func (s *AMQPSender) Exchange() string {
	if s == nil {
		return ""
	}
	return s.exchange
}

func (s *AMQPSender) Send(ctx context.Context, cmd core.NotificationCommand) error {
	if s == nil || s.publisher == nil {
		return transportError(
			"transport: amqp sender requires a channel",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"sender": KindAMQP},
		)
	}
	body, err := encodePayload(cmd)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryBadInput, "transport: encode notification", http.StatusBadRequest,
			map[string]any{"sender": KindAMQP, "notification_id": cmd.ID})
	}
	key := RoutingKey(cmd.Kind)
	err = s.publisher.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strings.TrimSpace(cmd.IdempotencyKey),
		Timestamp:    time.Now().UTC(),
		Type:         string(cmd.Kind),
		Headers: amqp.Table{
			"booking_id":      strings.TrimSpace(cmd.BookingID),
			"correlation_key": strings.TrimSpace(cmd.CorrelationKey),
		},
		Body: body,
	})
	if err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: publish notification",
			http.StatusBadGateway,
			map[string]any{"sender": KindAMQP, "exchange": s.exchange, "routing_key": key},
		)
	}
	return nil
}

func (s *AMQPSender) Close() error {
	if s == nil {
		return nil
	}
	var first error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

var _ core.NotificationSender = (*AMQPSender)(nil)
