// Package kafka publishes frame events to a Kafka topic. Messages are keyed
// by NodeID so every event for one node lands on the same partition, in
// commit order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/frames/pkg/eventstream"
)

// DefaultTopic receives frame events when no topic is configured.
const DefaultTopic = "frames.events"

// Config configures the publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Zero means 10s.
	WriteTimeout time.Duration
}

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes FrameCommittedEvents as JSON messages.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, cfg.WriteTimeout), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{writer: w, timeout: timeout}
}

// PublishFrame writes one event.
func (p *Publisher) PublishFrame(ctx context.Context, event *eventstream.FrameCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilFrameEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding frame event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	node := event.Commit.NodeID
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   node[:],
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing frame event %s: %w", event.EventID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
