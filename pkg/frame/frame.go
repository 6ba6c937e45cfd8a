// Package frame defines the immutable, content-addressed context artifact
// produced by an agent for a filesystem node.
package frame

import (
	"maps"
	"slices"
	"time"

	"github.com/papercomputeco/frames/pkg/identity"
)

// Frame is a context artifact bound to exactly one node and one agent.
// Its ID is derived from NodeID, AgentID, Content and Fields. Metadata and
// CreatedAt are descriptive only and never affect the ID.
type Frame struct {
	ID        identity.FrameID  `json:"id"`
	NodeID    identity.NodeID   `json:"node_id"`
	AgentID   string            `json:"agent_id"`
	Content   []byte            `json:"content"`
	Fields    []identity.Field  `json:"fields,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Meta carries the descriptive, non-identity attributes of a frame.
type Meta struct {
	Metadata  map[string]string
	CreatedAt time.Time
}

// New builds a frame and computes its ID. Fields are copied and sorted by
// name; duplicate field names are an error.
func New(node identity.NodeID, agentID string, content []byte, fields []identity.Field, metas ...Meta) (*Frame, error) {
	sorted := slices.Clone(fields)
	if err := identity.SortFields(sorted); err != nil {
		return nil, err
	}

	f := &Frame{
		NodeID:  node,
		AgentID: agentID,
		Content: slices.Clone(content),
		Fields:  sorted,
	}
	if f.Content == nil {
		f.Content = []byte{}
	}
	for _, m := range metas {
		if m.Metadata != nil {
			f.Metadata = maps.Clone(m.Metadata)
		}
		if !m.CreatedAt.IsZero() {
			f.CreatedAt = m.CreatedAt
		}
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	f.ID = f.ComputeID()
	return f, nil
}

// ComputeID recomputes the identifier from the frame's identity inputs.
func (f *Frame) ComputeID() identity.FrameID {
	return identity.ComputeFrameID(f.NodeID, f.AgentID, f.Content, f.Fields...)
}

// Verify reports whether the stored ID matches the frame's contents, and
// returns the recomputed identifier.
func (f *Frame) Verify() (identity.FrameID, bool) {
	computed := f.ComputeID()
	return computed, computed == f.ID
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Content = slices.Clone(f.Content)
	c.Metadata = maps.Clone(f.Metadata)
	c.Fields = make([]identity.Field, len(f.Fields))
	for i, fld := range f.Fields {
		c.Fields[i] = identity.Field{Name: fld.Name, Value: slices.Clone(fld.Value)}
	}
	return &c
}
