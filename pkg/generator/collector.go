package generator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// DefaultMaxContentBytes bounds how much of a file is sent to a provider.
const DefaultMaxContentBytes = 64 << 10

// maxChildren bounds the entries listed for a directory.
const maxChildren = 256

// Collector resolves a node into the context handed to a generator.
type Collector interface {
	Collect(ctx context.Context, node identity.NodeID, source string) (NodeContext, error)
}

// NodeReader is the slice of the store a collector reads.
type NodeReader interface {
	GetNode(ctx context.Context, id identity.NodeID) (*merkle.NodeRecord, error)
}

// StaleNodeError is returned when a file on disk no longer matches the node
// it was ingested as.
type StaleNodeError struct {
	NodeID identity.NodeID
	Path   string
}

func (e StaleNodeError) Error() string {
	return fmt.Sprintf("file %s changed since node %s was ingested", e.Path, e.NodeID.Short())
}

// FSCollector reads node content from the working tree rooted at Root.
type FSCollector struct {
	Nodes    NodeReader
	Root     string
	MaxBytes int
}

// Collect builds the context for node. source, when set, overrides the
// record's path relative to Root. File content is verified against the
// record's digest unless it was truncated.
func (c *FSCollector) Collect(ctx context.Context, node identity.NodeID, source string) (NodeContext, error) {
	rec, err := c.Nodes.GetNode(ctx, node)
	if err != nil {
		return NodeContext{}, err
	}

	nc := NodeContext{NodeID: rec.ID, Path: rec.Path, Kind: rec.Kind}
	if rec.IsDir() {
		for i, child := range rec.Children {
			if i == maxChildren {
				nc.Truncated = true
				break
			}
			cr, err := c.Nodes.GetNode(ctx, child)
			if err != nil {
				return NodeContext{}, fmt.Errorf("loading child of %s: %w", rec.Path, err)
			}
			nc.Children = append(nc.Children, cr.Path)
		}
		return nc, nil
	}

	rel := rec.Path
	if source != "" {
		rel = identity.CanonicalPath(source)
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxContentBytes
	}

	f, err := os.Open(filepath.Join(c.Root, filepath.FromSlash(rel)))
	if err != nil {
		return NodeContext{}, fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, f, int64(limit)+1)
	if err != nil && err != io.EOF {
		return NodeContext{}, fmt.Errorf("reading %s: %w", rel, err)
	}
	if n > int64(limit) {
		nc.Truncated = true
		buf.Truncate(limit)
	}
	nc.Content = buf.Bytes()

	if !nc.Truncated && source == "" && rec.ContentDigest != nil && identity.HashContent(nc.Content) != *rec.ContentDigest {
		return NodeContext{}, StaleNodeError{NodeID: rec.ID, Path: rec.Path}
	}
	return nc, nil
}
