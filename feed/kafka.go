// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/danielhkuo/fingervote/models"
)

// KafkaPublisher exports committed votes to a Kafka topic for downstream
// consumers (analytics, audit). Messages are keyed by participant so all
// votes for one participant land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		// The vote request must not wait on broker batching
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("kafka vote export failed", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.VoteEvent) error {
	msg, err := voteMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write vote event to kafka: %w", err)
	}
	return nil
}

// voteMessage keys the event by participant id with the JSON event as value
func voteMessage(ev models.VoteEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode vote event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ParticipantID),
		Value: data,
		Time:  ev.CreatedAt,
	}, nil
}

// Close flushes pending messages
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
