package publisher

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "order-events"

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batch     int64
	repo      repository.OutboxRepository
	writer    MessageWriter
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(repo repository.OutboxRepository, writer MessageWriter) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		batch:     100,
		repo:      repo,
		writer:    writer,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	log := logger.FromContext(ctx)

	events, err := p.repo.GetUnprocessed(ctx, p.batch)
	if err != nil {
		log.Error("failed to fetch outbox events", "error", err)
		return
	}

	for i := range events {
		event := &events[i]
		if errPublish := p.publish(ctx, event); errPublish != nil {
			log.Error("failed to publish outbox event", "event_id", event.ID, "event_type", event.EventType, "error", errPublish)
			// Keep per-aggregate order: later events wait for the next tick.
			return
		}

		if errMark := p.repo.MarkProcessed(ctx, event.ID); errMark != nil {
			log.Error("failed to mark outbox event as processed", "event_id", event.ID, "error", errMark)
			continue
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order or payment id for ordering
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}
