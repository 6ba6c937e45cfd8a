package identity

import (
	"fmt"
	"slices"
	"strings"
)

// Field is an identity-relevant attribute folded into a FrameID. Unlike
// frame metadata, fields change the identifier when they change.
type Field struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// ComputeFrameID returns the identifier of a frame.
//
// Fields are hashed in the order given; callers keep them sorted by name
// (see SortFields). Metadata never participates in the identifier.
func ComputeFrameID(node NodeID, agentID string, content []byte, fields ...Field) FrameID {
	e := newEncoder(DomainFrame)
	e.bytes(node[:])
	e.string(agentID)
	e.bytes(content)
	e.uint64(uint64(len(fields)))
	for _, f := range fields {
		e.string(f.Name)
		e.bytes(f.Value)
	}

	var id FrameID
	e.sum(id[:])
	return id
}

// SortFields orders fields by name in place and rejects duplicate names.
func SortFields(fields []Field) error {
	slices.SortFunc(fields, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	for i := 1; i < len(fields); i++ {
		if fields[i].Name == fields[i-1].Name {
			return fmt.Errorf("duplicate identity field %q", fields[i].Name)
		}
	}
	return nil
}
