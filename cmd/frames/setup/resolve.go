package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/dotdir"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// ErrNoIngest is returned when a path is given but nothing was ingested.
var ErrNoIngest = errors.New("no ingest recorded; run \"frames ingest\" first or pass a node ID")

// LastIngest returns the most recent ingest state, or nil.
func (e *Env) LastIngest() (*dotdir.IngestState, error) {
	return dotdir.NewManager().LoadIngestState(e.ConfigDir)
}

// RecordIngest persists res as the most recent ingest of path.
func (e *Env) RecordIngest(path string, res *merkle.IngestResult) error {
	return dotdir.NewManager().SaveIngestState(&dotdir.IngestState{
		Root:        res.Root.String(),
		Path:        path,
		Files:       res.Files,
		Directories: res.Directories,
		IngestedAt:  time.Now().UTC(),
	}, e.ConfigDir)
}

// ResolveNode accepts either a hex node ID or a path inside the most
// recently ingested snapshot.
func (e *Env) ResolveNode(ctx context.Context, store *contextstore.Store, arg string) (identity.NodeID, error) {
	if id, err := identity.ParseNodeID(arg); err == nil {
		return id, nil
	}

	state, err := e.LastIngest()
	if err != nil {
		return identity.NodeID{}, err
	}
	if state == nil {
		return identity.NodeID{}, ErrNoIngest
	}

	root, err := identity.ParseNodeID(state.Root)
	if err != nil {
		return identity.NodeID{}, fmt.Errorf("ingest state: %w", err)
	}
	if identity.CanonicalPath(arg) == identity.RootPath {
		return root, nil
	}

	tree, err := merkle.LoadTree(ctx, store, root)
	if err != nil {
		return identity.NodeID{}, err
	}
	n := tree.Lookup(arg)
	if n == nil {
		return identity.NodeID{}, fmt.Errorf("no node at %q in snapshot %s", identity.CanonicalPath(arg), root.Short())
	}
	return n.ID, nil
}

// WorkingTree returns the directory generation reads content from: the
// override when set, otherwise the last ingested path.
func (e *Env) WorkingTree(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	state, err := e.LastIngest()
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", ErrNoIngest
	}
	return state.Path, nil
}
