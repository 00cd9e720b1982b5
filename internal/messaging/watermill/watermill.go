// Package watermill publishes register events through a Watermill publisher, backed by
// Kafka (Sarama) in production.
package watermill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	wm "github.com/ThreeDotsLabs/watermill"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
	"github.com/google/uuid"
)

// KeyMetadata is the message metadata entry holding the partition key.
const KeyMetadata = "partition_key"

// Publisher adapts a Watermill message.Publisher to messaging.Publisher.
type Publisher struct {
	pub message.Publisher
}

var _ messaging.Publisher = (*Publisher)(nil)

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// NewKafkaPublisher creates a Watermill Kafka publisher that partitions by event key.
func NewKafkaPublisher(brokers []string, clientID string, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := wmkafka.DefaultSaramaSyncPublisherConfig()
	saramaConfig.ClientID = clientID
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	pub, err := wmkafka.NewPublisher(
		wmkafka.PublisherConfig{
			Brokers: brokers,
			Marshaler: wmkafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
				return msg.Metadata.Get(KeyMetadata), nil
			}),
			OverwriteSaramaConfig: saramaConfig,
		},
		wm.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill kafka publisher: %w", err)
	}
	return NewPublisher(pub), nil
}

func (p *Publisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(KeyMetadata, key)
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
