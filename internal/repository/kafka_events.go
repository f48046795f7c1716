package repository

import (
	"context"

	"TradeDesk/internal/domain/models"
)

// EventProducer is the slice of the Kafka producer the publisher needs.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	Close() error
}

// KafkaEventPublisher writes desk events to one topic keyed by symbol so
// events of a symbol stay ordered.
type KafkaEventPublisher struct {
	producer EventProducer
	topic    string
}

func NewKafkaEventPublisher(p EventProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e models.Event) error {
	key := e.Symbol
	if key == "" {
		key = e.Type
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), e)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
