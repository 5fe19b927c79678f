package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON order events to a durable RabbitMQ queue
// through the default exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	ch      channel
	queue   string
	breaker *resilience.CircuitBreaker
	logger  core.Logger
}

// NewAMQPPublisher dials url, opens a channel and declares queue.
// breaker may be nil.
func NewAMQPPublisher(url, queue string, breaker *resilience.CircuitBreaker, logger core.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url is required: %w", core.ErrMissingConfiguration)
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v: %w", err, core.ErrConnectionFailed)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	p := newAMQPPublisher(ch, q.Name, breaker, logger)
	p.conn = conn
	p.logger.Info("Order event publisher connected", map[string]interface{}{
		"queue": q.Name,
	})
	return p, nil
}

func newAMQPPublisher(ch channel, queue string, breaker *resilience.CircuitBreaker, logger core.Logger) *AMQPPublisher {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("grocery/events")
	}
	return &AMQPPublisher{ch: ch, queue: queue, breaker: breaker, logger: logger}
}

// PublishOrderConfirmed sends evt as a persistent message. Trace context
// and the correlation id travel in the message headers.
func (p *AMQPPublisher) PublishOrderConfirmed(ctx context.Context, evt OrderConfirmed) error {
	ctx, span := telemetry.StartSpan(ctx, "events.PublishOrderConfirmed",
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination", p.queue),
		attribute.String("order_id", evt.OrderID),
	)
	defer span.End()

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(headers))
	if id := core.CorrelationIDFromContext(ctx); id != "" {
		headers[core.CorrelationIDHeader] = id
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.OrderID,
		Timestamp:    evt.ConfirmedAt,
		Type:         "order.confirmed",
		Headers:      headers,
		Body:         body,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	publish := func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, publish)
	} else {
		err = publish()
	}

	result := "success"
	if err != nil {
		result = "error"
		telemetry.RecordSpanError(ctx, err)
	}
	telemetry.Counter(ctx, telemetry.MetricEventsPublished,
		attribute.String("type", msg.Type),
		attribute.String("result", result),
	)
	if err != nil {
		return fmt.Errorf("publish order %s: %w", evt.OrderID, err)
	}

	p.logger.DebugWithContext(ctx, "Order event published", map[string]interface{}{
		"order_id": evt.OrderID,
		"queue":    p.queue,
		"bytes":    len(body),
	})
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// tableCarrier adapts AMQP headers to the OpenTelemetry propagator.
type tableCarrier amqp.Table

func (c tableCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c tableCarrier) Set(key, value string) { c[key] = value }

func (c tableCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
