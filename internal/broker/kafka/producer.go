package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderContentType = "content-type"
	HeaderEventType   = "event-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// typedEvent: событие, которое знает своё имя; имя уходит в заголовок.
type typedEvent interface {
	EventType() string
}

// Producer пишет в один топик, ключ сообщения: тенант, чтобы события
// одного продавца попадали в одну партицию.
type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return newProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}, topic)
}

func newProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	}); err != nil {
		return errors.Wrapf(err, "kafka publish to %s", p.topic)
	}
	return nil
}

func (p *Producer) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	headers := []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
	if te, ok := v.(typedEvent); ok {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(te.EventType())})
	}
	return p.Publish(ctx, []byte(key), b, headers...)
}

func (p *Producer) Close() error {
	return p.w.Close()
}
