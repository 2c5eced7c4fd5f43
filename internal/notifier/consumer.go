// Package notifier turns published order and payment events into shopper
// notifications. Delivery is fire-and-forget; a failed send is logged only.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Sender delivers a notification to a shopper.
type Sender interface {
	SendOrder(ctx context.Context, eventType string, e domain.OrderEvent) error
	SendPayment(ctx context.Context, e domain.PaymentEvent) error
}

// Dispatcher decodes one event and hands it to the Sender.
type Dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

func (d *Dispatcher) Handle(ctx context.Context, m kafka.Message) error {
	eventType := header(m, "event_type")
	switch eventType {
	case domain.EventOrderCreated, domain.EventOrderConfirmed, domain.EventOrderCancelled:
		var e domain.OrderEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return d.sender.SendOrder(ctx, eventType, e)
	case domain.EventPaymentStatusChanged:
		var e domain.PaymentEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return d.sender.SendPayment(ctx, e)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
}

// WriteMessages dispatches in-process, so the outbox poller can feed the
// notifier directly when no broker is configured.
func (d *Dispatcher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if err := d.Handle(ctx, m); err != nil {
			logger.FromContext(ctx).Warn("notification dropped", "key", string(m.Key), "error", err)
		}
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type Consumer struct {
	dispatcher *Dispatcher
	reader     *kafka.Reader
}

func NewConsumer(dispatcher *Dispatcher, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{dispatcher, reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) processMessage(ctx context.Context) {
	log := logger.FromContext(ctx)

	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("error reading message", "error", err)
		return
	}

	if err := c.dispatcher.Handle(ctx, m); err != nil {
		log.Warn("notification dropped", "key", string(m.Key), "offset", m.Offset, "error", err)
	}
}
