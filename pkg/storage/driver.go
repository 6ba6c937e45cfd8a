// Package storage defines the persistence contract for nodes, frames, frame
// sets and heads, and the error types every driver reports.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// NodeStore persists immutable node records.
type NodeStore interface {
	// PutNode stores a record. Returns true if the record was newly inserted;
	// storing an existing NodeID is a no-op.
	PutNode(ctx context.Context, rec *merkle.NodeRecord) (bool, error)

	// GetNode retrieves a record, or NotFoundError.
	GetNode(ctx context.Context, id identity.NodeID) (*merkle.NodeRecord, error)

	// HasNode reports whether a record exists.
	HasNode(ctx context.Context, id identity.NodeID) (bool, error)
}

// FrameStore persists frames by FrameID.
type FrameStore interface {
	// PutFrame stores a frame and returns its ID. Storing a frame whose ID is
	// already present is a no-op. A frame whose ID does not match its
	// contents is rejected with IntegrityError.
	PutFrame(ctx context.Context, f *frame.Frame) (identity.FrameID, error)

	// GetFrame retrieves a frame, re-verifying its identifier. Returns
	// NotFoundError when absent and IntegrityError when the stored bytes no
	// longer hash to id.
	GetFrame(ctx context.Context, id identity.FrameID) (*frame.Frame, error)

	// HasFrame reports whether a frame exists.
	HasFrame(ctx context.Context, id identity.FrameID) (bool, error)
}

// FrameSetStore maintains the per-node set of frame identifiers and its root.
// Every operation on a node that was never stored returns NodeUnknownError.
type FrameSetStore interface {
	// AddToFrameSet adds a stored frame to its node's set and returns the new
	// root. Adding a present member leaves the root unchanged. The frame must
	// already be stored and belong to node, otherwise NotFoundError or
	// ConflictError is returned.
	AddToFrameSet(ctx context.Context, node identity.NodeID, id identity.FrameID) (identity.Digest, error)

	// FrameSetContains reports set membership.
	FrameSetContains(ctx context.Context, node identity.NodeID, id identity.FrameID) (bool, error)

	// FrameSetRoot returns the node's current set root. A known node with no
	// frames returns merkle.EmptyFrameSetRoot.
	FrameSetRoot(ctx context.Context, node identity.NodeID) (identity.Digest, error)

	// FrameSetMembers returns members newest first, filtered and bounded by q.
	FrameSetMembers(ctx context.Context, node identity.NodeID, q MemberQuery) ([]Member, error)
}

// HeadIndex maps (node, agent) to the most recently committed frame.
type HeadIndex interface {
	// GetHead returns the head for the pair. ok is false when none exists.
	GetHead(ctx context.Context, node identity.NodeID, agentID string) (head Head, ok bool, err error)

	// UpdateHead points the pair at id, allocating a new commit sequence.
	// The frame must be stored and belong to node.
	UpdateHead(ctx context.Context, node identity.NodeID, agentID string, id identity.FrameID) (Head, error)

	// HeadsForNode returns every head of node ordered by agent.
	HeadsForNode(ctx context.Context, node identity.NodeID) ([]Head, error)
}

// Driver is the full storage backend. Commit is the only write path that
// touches frame, frame set and head together, and does so atomically.
type Driver interface {
	NodeStore
	FrameStore
	FrameSetStore
	HeadIndex

	// Commit stores f, adds it to its node's frame set and makes it the head
	// for (f.NodeID, f.AgentID) in one atomic step. Readers observe either
	// none or all of the three effects.
	Commit(ctx context.Context, f *frame.Frame) (*CommitResult, error)

	// Stats returns record counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}

// LegacyHeadStore is implemented by drivers that may hold heads written
// under the retired key scheme, which carried an extra frame type component.
type LegacyHeadStore interface {
	// LegacyHeads returns every head stored under the retired scheme.
	LegacyHeads(ctx context.Context) ([]LegacyHead, error)

	// RestoreHead writes h verbatim, keeping its sequence and timestamp.
	RestoreHead(ctx context.Context, h Head) error

	// DropLegacyHeads removes every head stored under the retired scheme.
	DropLegacyHeads(ctx context.Context) error
}

// Head is the current frame for one (node, agent) pair.
type Head struct {
	NodeID    identity.NodeID  `json:"node_id"`
	AgentID   string           `json:"agent_id"`
	FrameID   identity.FrameID `json:"frame_id"`
	Seq       uint64           `json:"seq"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Member is one entry of a node's frame set.
type Member struct {
	FrameID identity.FrameID `json:"frame_id"`
	AgentID string           `json:"agent_id"`

	// Seq is the commit sequence at which the frame joined the set.
	Seq     uint64    `json:"seq"`
	AddedAt time.Time `json:"added_at"`
}

// MaxMemberLimit caps a single FrameSetMembers query.
const MaxMemberLimit = 1024

// MemberQuery filters and bounds a frame set listing. Limit must be in
// 1..MaxMemberLimit; there is no unbounded listing.
type MemberQuery struct {
	IncludeAgents []string
	ExcludeAgents []string
	Limit         int
}

// CommitResult describes the effects of one Commit.
type CommitResult struct {
	FrameID identity.FrameID `json:"frame_id"`
	Seq     uint64           `json:"seq"`
	Root    identity.Digest  `json:"frame_set_root"`

	// NewFrame is false when the frame was already stored.
	NewFrame bool `json:"new_frame"`

	// PreviousHead is the head the commit replaced, if any.
	PreviousHead *identity.FrameID `json:"previous_head,omitempty"`
}

// Stats holds record counts for a store.
type Stats struct {
	Nodes   int64 `json:"nodes"`
	Frames  int64 `json:"frames"`
	Members int64 `json:"members"`
	Heads   int64 `json:"heads"`
}

// LegacyHead is a head stored under the retired key scheme.
type LegacyHead struct {
	NodeID    identity.NodeID
	AgentID   string
	FrameType string
	FrameID   identity.FrameID
	Seq       uint64
	UpdatedAt time.Time
}
