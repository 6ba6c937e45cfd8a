package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Handle identifies one admitted generation request.
type Handle string

// Mode selects how Submit completes.
type Mode int

const (
	// ModeSync waits for the request's outcome.
	ModeSync Mode = iota

	// ModeAsync returns the handle immediately.
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty means sync.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "sync":
		*m = ModeSync
	case "async":
		*m = ModeAsync
	default:
		return fmt.Errorf("unknown generation mode %q", string(b))
	}
	return nil
}

// State is a request's lifecycle position. Completed and Failed are terminal.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StatePending, StateRunning, StateCompleted, StateFailed} {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown request state %q", string(b))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Identity is the single-flight key of a request.
type Identity struct {
	NodeID  identity.NodeID `json:"node_id"`
	AgentID string          `json:"agent_id"`
}

func (id Identity) String() string {
	return id.NodeID.Short() + "/" + id.AgentID
}

// RequestOptions tune one request.
type RequestOptions struct {
	// Force generates even if the pair already has a head.
	Force bool

	Mode Mode

	// Source overrides where the node's content is read from.
	Source string

	// Metadata is attached to the committed frame.
	Metadata map[string]string

	// Timeout bounds a synchronous caller's wait. Zero waits until the
	// caller's context ends.
	Timeout time.Duration
}

// Outcome is a snapshot of a request.
type Outcome struct {
	Handle   Handle   `json:"handle"`
	Identity Identity `json:"identity"`
	State    State    `json:"state"`

	// Skipped is set when the pair already had a head and Force was off.
	// FrameID is then the existing head.
	Skipped bool             `json:"skipped,omitempty"`
	FrameID identity.FrameID `json:"frame_id,omitzero"`

	Commit   *storage.CommitResult `json:"commit,omitempty"`
	Attempts int                   `json:"attempts"`

	// Err is the terminal error of a failed request.
	Err error `json:"-"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// ErrorMessage returns the terminal error message, or "" for a request that
// has not failed.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type request struct {
	handle Handle
	id     Identity
	opts   RequestOptions

	ctx    context.Context
	cancel context.CancelCauseFunc

	// Guarded by Queue.mu.
	state           State
	committing      bool
	cancelRequested bool
	outcome         Outcome

	done chan struct{}
}

func (r *request) snapshot() Outcome {
	o := r.outcome
	o.Handle = r.handle
	o.Identity = r.id
	o.State = r.state
	return o
}
