package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// envelope is the wire format for all reconciliation events. Messages
// are keyed by cart token so consumers see per-cart ordering.
type envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// KafkaDispatcher publishes events to a single Kafka topic.
type KafkaDispatcher struct {
	writer *kafka.Writer
	now    func() time.Time
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaDispatcher{writer: w, now: time.Now}
}

func (d *KafkaDispatcher) publish(ctx context.Context, eventType, cartToken string, payload interface{}) error {
	value, err := json.Marshal(envelope{
		Type:       eventType,
		OccurredAt: d.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return err
	}

	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(cartToken),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (d *KafkaDispatcher) MarkedAbandoned(ctx context.Context, e MarkedAbandoned) error {
	return d.publish(ctx, TypeMarkedAbandoned, e.Snapshot.CartToken, e)
}

func (d *KafkaDispatcher) Updated(ctx context.Context, e Updated) error {
	return d.publish(ctx, TypeUpdated, e.Snapshot.CartToken, e)
}

func (d *KafkaDispatcher) Deleted(ctx context.Context, e Deleted) error {
	return d.publish(ctx, TypeDeleted, e.CartToken, e)
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

var _ Dispatcher = (*KafkaDispatcher)(nil)
