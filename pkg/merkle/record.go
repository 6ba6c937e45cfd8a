// Package merkle models the filesystem as a Merkle tree of content-addressed
// nodes and computes the per-node frame set roots.
package merkle

import (
	"github.com/papercomputeco/frames/pkg/identity"
)

// NodeKind distinguishes files from directories.
type NodeKind uint8

const (
	KindFile NodeKind = iota + 1
	KindDirectory
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *NodeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "directory":
		*k = KindDirectory
	default:
		*k = 0
	}
	return nil
}

// NodeRecord is the stored form of one filesystem node. Records are never
// mutated once written: a changed file or directory yields a new NodeID.
//
// Parent is a lookup hint recorded when the node was first observed. Records
// are written once, so an unchanged subtree carried into a later snapshot
// keeps its original parent; resolve the parent within a given snapshot with
// Tree.Ancestors. The parent's identity does not feed into the node's own
// identity.
type NodeRecord struct {
	ID            identity.NodeID   `json:"id"`
	Path          string            `json:"path"`
	Kind          NodeKind          `json:"kind"`
	Parent        *identity.NodeID  `json:"parent,omitempty"`
	Children      []identity.NodeID `json:"children,omitempty"`
	ContentDigest *identity.Digest  `json:"content_digest,omitempty"`
	Size          int64             `json:"size"`
}

// ComputeID recomputes the node's identifier from its record.
func (r *NodeRecord) ComputeID() identity.NodeID {
	return identity.ComputeNodeIDFromDigest(r.Path, r.ContentDigest, r.Children)
}

// IsDir reports whether the record describes a directory.
func (r *NodeRecord) IsDir() bool {
	return r.Kind == KindDirectory
}
