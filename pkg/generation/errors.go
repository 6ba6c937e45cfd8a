package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/storage"
)

var (
	// ErrCancelled is the terminal error of a cancelled request.
	ErrCancelled = fmt.Errorf("generation cancelled: %w", context.Canceled)

	// ErrTimeout is returned by Await when the caller's wait expires. The
	// request keeps running.
	ErrTimeout = fmt.Errorf("generation wait timed out: %w", context.DeadlineExceeded)

	// ErrQueueFull is returned when no request slot is free. It is transient.
	ErrQueueFull = generator.Transient(errors.New("generation queue is full"))

	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("generation queue is closed")

	// ErrNotCancellable is returned when cancelling a request that is
	// committing.
	ErrNotCancellable = storage.ConflictError{Reason: "generation is committing and can no longer be cancelled"}
)

// KindRequest names generation requests in NotFoundError.
const KindRequest = "generation request"

func unknownRequest(h Handle) error {
	return storage.NotFoundError{Kind: KindRequest, ID: string(h)}
}
