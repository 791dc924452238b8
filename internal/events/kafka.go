// Package events delivers committed engine events: to Kafka when brokers
// are configured, otherwise to the structured log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"inventory-ledger/internal/config"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/logger"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

// KafkaPublisher writes each event as a JSON message keyed by the event
// key, so all events of one pair or lot land on one partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// DialKafka connects a sync producer to the configured brokers.
func DialKafka(cfg config.Kafka) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, cfg.Topic), nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...core.Event) error {
	const op = "events.KafkaPublisher.Publish"

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.Key),
			Value: sarama.ByteEncoder(body),
			Headers: []sarama.RecordHeader{
				{Key: []byte(headerEventType), Value: []byte(e.Type)},
				{Key: []byte(headerEventID), Value: []byte(e.ID)},
			},
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			logger.Error(ctx, "events not delivered",
				logger.String("op", op),
				logger.String("topic", p.topic),
				logger.Int("failed", len(perrs)),
				logger.Int("total", len(msgs)))
		}
		return fmt.Errorf("send %d events to %s: %w", len(msgs), p.topic, err)
	}

	for i, m := range msgs {
		logger.Debug(ctx, "event sent",
			logger.String("op", op),
			logger.String("type", string(events[i].Type)),
			logger.String("key", events[i].Key),
			logger.Int("partition", int(m.Partition)),
			logger.Int64("offset", m.Offset))
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
