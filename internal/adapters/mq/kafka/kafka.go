// Package kafka fans persisted readings out to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each reading as JSON keyed by its id, so all copies of a
// reading land on the same partition.
type Publisher struct {
	writer MessageWriter
	topic  string
	logger logger.Logger
}

// NewPublisher builds a publisher for topic on brokers. WithWriter replaces
// the kafka-go writer.
func NewPublisher(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	p := &Publisher{topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	if p.writer == nil {
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}
		p.writer = &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return p, nil
}

// Publish writes r to the topic.
func (p *Publisher) Publish(ctx context.Context, r model.SensorReading) error { //nolint:gocritic // readings travel by value
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading %s: %w", r.ID, err)
	}
	msg := kafkago.Message{Key: []byte(r.ID), Value: b, Time: r.Time()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	p.logger.Debug(ctx, "published", logger.String("id", r.ID), logger.String("topic", p.topic))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
