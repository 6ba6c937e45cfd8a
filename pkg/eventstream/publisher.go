package eventstream

import (
	"context"
	"errors"
)

// ErrNilFrameEvent is returned by publishers handed a nil event.
var ErrNilFrameEvent = errors.New("nil frame event")

// Publisher delivers FrameCommittedEvents to a stream backend. A publish
// error never fails the commit that produced the event.
type Publisher interface {
	PublishFrame(ctx context.Context, event *FrameCommittedEvent) error
	Close() error
}
