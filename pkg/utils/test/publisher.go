package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/frames/pkg/eventstream"
)

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.FrameCommittedEvent

	// FailWith, when set, is returned by every publish.
	FailWith error

	// Gate, when set, blocks every publish until it is closed. Started
	// receives one value per publish that has begun.
	Gate    chan struct{}
	Started chan struct{}
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishFrame(_ context.Context, event *eventstream.FrameCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilFrameEvent
	}
	if p.Started != nil {
		select {
		case p.Started <- struct{}{}:
		default:
		}
	}
	if p.Gate != nil {
		<-p.Gate
	}
	if p.FailWith != nil {
		return p.FailWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of published events.
func (p *RecordingPublisher) Events() []*eventstream.FrameCommittedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.FrameCommittedEvent(nil), p.events...)
}

func (p *RecordingPublisher) Close() error {
	return nil
}
