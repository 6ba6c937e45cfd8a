package nop

import (
	"context"

	"github.com/papercomputeco/frames/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFrame validates input and otherwise does nothing.
func (p *Publisher) PublishFrame(_ context.Context, event *eventstream.FrameCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilFrameEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
