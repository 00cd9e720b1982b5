package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
	kafkaGo "github.com/segmentio/kafka-go"
)

// Broker publishes and consumes JSON messages with segmentio/kafka-go.
type Broker struct {
	brokers []string
	writer  *kafkaGo.Writer
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// NewKafkaBroker creates a new Kafka publisher and subscriber. One writer is shared by
// every topic.
func NewKafkaBroker(brokers []string) *Broker {
	return &Broker{
		brokers: brokers,
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

// Consume reads messages from topic in a loop and calls handler for each one.
// It blocks until the context is cancelled.
func (k *Broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Consumer shutting down", "topic", topic)
				return
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("Error handling message", "topic", topic, "err", err)
		}
	}
}

// Close flushes and closes the shared writer.
func (k *Broker) Close() error {
	return k.writer.Close()
}
