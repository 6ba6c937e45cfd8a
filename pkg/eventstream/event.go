// Package eventstream publishes notifications about committed frames to an
// external stream. Publishing is best-effort: a failed publish never undoes
// or fails a commit.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/frames/pkg/identity"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFrameCommitted is emitted after a frame is committed and its
	// head updated.
	EventTypeFrameCommitted = "frames.frame.committed"
)

// Origin values name the path a frame was committed through.
const (
	OriginWrite      = "write"
	OriginGeneration = "generation"
)

// FrameCommittedEvent is a transport-neutral event payload for one commit.
type FrameCommittedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Commit        CommitMeta  `json:"commit"`
}

// EventSource identifies who produced the frame.
type EventSource struct {
	AgentID string `json:"agent_id"`
	Origin  string `json:"origin"`

	// RequestID is the generation request handle, for generated frames.
	RequestID string `json:"request_id,omitempty"`
}

// CommitMeta describes the commit's effect on the store.
type CommitMeta struct {
	NodeID       identity.NodeID   `json:"node_id"`
	FrameID      identity.FrameID  `json:"frame_id"`
	Seq          uint64            `json:"seq"`
	FrameSetRoot identity.Digest   `json:"frame_set_root"`
	PreviousHead *identity.FrameID `json:"previous_head,omitempty"`
	NewFrame     bool              `json:"new_frame"`
	ContentBytes int               `json:"content_bytes"`
}

// NewFrameCommittedEvent stamps a new event with an ID and emission time.
func NewFrameCommittedEvent(source EventSource, commit CommitMeta) *FrameCommittedEvent {
	return &FrameCommittedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeFrameCommitted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Commit:        commit,
	}
}
