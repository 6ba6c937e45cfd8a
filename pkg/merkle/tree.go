package merkle

import (
	"context"
	"fmt"

	"github.com/papercomputeco/frames/pkg/identity"
)

// TreeLoader loads node records from storage. It lets a Tree be built from
// any driver without an import cycle.
type TreeLoader interface {
	GetNode(ctx context.Context, id identity.NodeID) (*NodeRecord, error)
}

// Tree is an in-memory view of one ingested snapshot, rooted at a single
// directory node and loaded on demand from a TreeLoader.
type Tree struct {
	// Root is the snapshot root
	Root *TreeNode

	// index provides O(1) lookup by NodeID
	index map[identity.NodeID]*TreeNode

	// byPath provides lookup by canonical path
	byPath map[string]*TreeNode
}

// TreeNode wraps a NodeRecord with its structural relationships.
type TreeNode struct {
	*NodeRecord

	// Parent is nil for the root
	Parent *TreeNode

	// Children in canonical path order
	Children []*TreeNode
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		index:  make(map[identity.NodeID]*TreeNode),
		byPath: make(map[string]*TreeNode),
	}
}

// LoadTree loads root and every node reachable from it.
func LoadTree(ctx context.Context, loader TreeLoader, root identity.NodeID) (*Tree, error) {
	rec, err := loader.GetNode(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("loading root %s: %w", root, err)
	}

	t := NewTree()
	t.Root = t.add(rec, nil)
	if err := t.loadChildren(ctx, loader, t.Root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) loadChildren(ctx context.Context, loader TreeLoader, n *TreeNode) error {
	for _, childID := range n.NodeRecord.Children {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := loader.GetNode(ctx, childID)
		if err != nil {
			return fmt.Errorf("loading child %s of %s: %w", childID, n.Path, err)
		}
		child := t.add(rec, n)
		if err := t.loadChildren(ctx, loader, child); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) add(rec *NodeRecord, parent *TreeNode) *TreeNode {
	n := &TreeNode{NodeRecord: rec, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, n)
	}
	t.index[rec.ID] = n
	t.byPath[rec.Path] = n
	return n
}

// Get returns the node with the given id, or nil.
func (t *Tree) Get(id identity.NodeID) *TreeNode {
	return t.index[id]
}

// Lookup returns the node at the canonical form of path, or nil.
func (t *Tree) Lookup(path string) *TreeNode {
	return t.byPath[identity.CanonicalPath(path)]
}

// Size returns the number of nodes in the tree.
func (t *Tree) Size() int {
	return len(t.index)
}

// Walk traverses the tree depth-first from the root. Traversal stops when
// fn returns false or an error; the error is propagated.
func (t *Tree) Walk(fn func(*TreeNode) (bool, error)) error {
	if t.Root == nil {
		return nil
	}
	_, err := walk(t.Root, fn)
	return err
}

func walk(n *TreeNode, fn func(*TreeNode) (bool, error)) (bool, error) {
	ok, err := fn(n)
	if !ok || err != nil {
		return false, err
	}
	for _, child := range n.Children {
		ok, err := walk(child, fn)
		if !ok || err != nil {
			return false, err
		}
	}
	return true, nil
}

// Ancestors returns the path from the node up to the root, node first.
// Returns nil if id is not in the tree.
func (t *Tree) Ancestors(id identity.NodeID) []*TreeNode {
	n := t.Get(id)
	if n == nil {
		return nil
	}
	var out []*TreeNode
	for cur := n; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

// Descendants returns every node below id in depth-first order.
// Returns nil if id is not in the tree.
func (t *Tree) Descendants(id identity.NodeID) []*TreeNode {
	n := t.Get(id)
	if n == nil {
		return nil
	}
	out := []*TreeNode{}
	for _, child := range n.Children {
		_, _ = walk(child, func(d *TreeNode) (bool, error) {
			out = append(out, d)
			return true, nil
		})
	}
	return out
}

// Leaves returns every node without children.
func (t *Tree) Leaves() []*TreeNode {
	var leaves []*TreeNode
	_ = t.Walk(func(n *TreeNode) (bool, error) {
		if len(n.Children) == 0 {
			leaves = append(leaves, n)
		}
		return true, nil
	})
	return leaves
}
