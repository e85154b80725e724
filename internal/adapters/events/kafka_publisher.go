package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

const defaultKafkaDeliveryTimeout = 10 * time.Second

// KafkaPublisher produces every envelope to one Kafka topic. The outbox
// routing key travels as a header and the subject id is the message key,
// so one subject's events stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewKafkaPublisher(bootstrapServers, topic string, timeout time.Duration, log logrus.FieldLogger) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if timeout <= 0 {
		timeout = defaultKafkaDeliveryTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"enable.idempotence": true,
		"acks":               "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.WithField("topic", topic).Info("kafka producer created")
	return &KafkaPublisher{producer: p, topic: topic, timeout: timeout, log: log}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	msg, err := p.message(topic, event)
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	if err := p.producer.Produce(msg, deliveryChan); err != nil {
		return fmt.Errorf("produce message: %w", err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event: %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("kafka delivery timeout after %s", p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *KafkaPublisher) message(routingKey string, event domain.EventEnvelope) (*kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.SubjectID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "routing_key", Value: []byte(routingKey)},
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}, nil
}

func (p *KafkaPublisher) Close() error {
	p.log.Info("closing kafka producer")
	if remaining := p.producer.Flush(15 * 1000); remaining > 0 {
		p.log.WithField("remaining", remaining).Warn("kafka producer closed with undelivered messages")
	}
	p.producer.Close()
	return nil
}
