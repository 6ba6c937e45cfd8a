// Package generator defines the provider boundary of the generation queue:
// given a node's context and an agent, produce frame content.
//
// Generators only return bytes. They never write to the store; the queue
// commits their output.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// NodeContext is what a generator sees of a node.
type NodeContext struct {
	NodeID identity.NodeID
	Path   string
	Kind   merkle.NodeKind

	// Content holds the file bytes, up to the collector's limit. Empty for
	// directories.
	Content   []byte
	Truncated bool

	// Children lists child paths of a directory, in canonical order.
	Children []string
}

// Generator produces content for one (node, agent) pair.
type Generator interface {
	Generate(ctx context.Context, nc NodeContext, ag agent.Agent) ([]byte, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, nc NodeContext, ag agent.Agent) ([]byte, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, nc NodeContext, ag agent.Agent) ([]byte, error) {
	return f(ctx, nc, ag)
}

// TransientError marks a failure worth retrying: rate limits, server errors,
// dropped connections.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient generator failure: %v", e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether err is, or wraps, a TransientError, or is a
// network timeout.
func IsTransient(err error) bool {
	var te TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// TransientStatus reports whether an HTTP status code is worth retrying.
func TransientStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code == 529: // provider overloaded
		return true
	case code >= 500:
		return true
	}
	return false
}

// ErrEmptyContent is returned when a provider answers with no content.
var ErrEmptyContent = errors.New("generator returned empty content")
