package notify

import (
	"context"

	"github.com/md-rashed-zaman/roombook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes to a topic per event type, keyed by aggregate id so events
// for one appointment land on one partition.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	headers := kafkax.EventMeta{
		EventID:   msg.Headers[kafkax.HeaderEventID],
		EventType: msg.Topic,
	}.Headers()
	for key, value := range msg.Headers {
		if key == kafkax.HeaderEventID || key == kafkax.HeaderEventType {
			continue
		}
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: kafkax.InjectTraceHeaders(ctx, headers),
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
