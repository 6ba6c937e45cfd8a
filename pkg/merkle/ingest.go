package merkle

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/frames/pkg/identity"
)

// NodeWriter persists node records. PutNode reports whether the record was
// newly written; writing an existing NodeID is a no-op.
type NodeWriter interface {
	PutNode(ctx context.Context, rec *NodeRecord) (bool, error)
}

// DefaultIgnore lists directory entry names skipped during ingestion.
var DefaultIgnore = []string{".git", ".frames"}

// IngestOptions tunes a filesystem ingestion.
type IngestOptions struct {
	// Ignore lists entry names to skip at any depth. Nil means DefaultIgnore.
	Ignore []string

	// Concurrency bounds parallel file hashing. Zero means GOMAXPROCS.
	Concurrency int
}

// IngestResult summarizes one ingestion.
type IngestResult struct {
	Root        identity.NodeID
	Files       int
	Directories int
	Written     int

	// Paths maps every canonical path in the snapshot to its NodeID.
	Paths map[string]identity.NodeID
}

type entry struct {
	rel      string
	abs      string
	dir      bool
	size     int64
	digest   identity.Digest
	children []*entry
	rec      *NodeRecord
}

// Ingest hashes the directory tree under root into node records and writes
// them to w. Children are ordered by canonical path, so the same tree always
// yields the same root NodeID. Symlinks and special files are skipped.
func Ingest(ctx context.Context, root string, w NodeWriter, opts IngestOptions) (*IngestResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat ingest root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest root %s is not a directory", root)
	}

	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}

	top := &entry{rel: identity.RootPath, abs: root, dir: true}
	var files []*entry
	if err := scan(top, ignore, &files); err != nil {
		return nil, err
	}

	if err := hashFiles(ctx, files, opts.Concurrency); err != nil {
		return nil, err
	}

	res := &IngestResult{Paths: make(map[string]identity.NodeID)}
	build(top, res)
	res.Root = top.rec.ID

	if err := write(ctx, top, nil, w, res); err != nil {
		return nil, err
	}
	return res, nil
}

func scan(dir *entry, ignore []string, files *[]*entry) error {
	dirents, err := os.ReadDir(dir.abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir.abs, err)
	}

	for _, de := range dirents {
		if slices.Contains(ignore, de.Name()) {
			continue
		}
		typ := de.Type()
		if typ&fs.ModeSymlink != 0 || (!typ.IsRegular() && !typ.IsDir()) {
			continue
		}

		child := &entry{
			rel: identity.JoinPath(dir.rel, de.Name()),
			abs: filepath.Join(dir.abs, de.Name()),
			dir: de.IsDir(),
		}
		if child.dir {
			if err := scan(child, ignore, files); err != nil {
				return err
			}
		} else {
			*files = append(*files, child)
		}
		dir.children = append(dir.children, child)
	}

	slices.SortFunc(dir.children, func(a, b *entry) int { return cmp.Compare(a.rel, b.rel) })
	return nil
}

func hashFiles(ctx context.Context, files []*entry, limit int) error {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return hashFile(f)
		})
	}
	return g.Wait()
}

func hashFile(e *entry) error {
	fh, err := os.Open(e.abs)
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.abs, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.abs, err)
	}
	e.size = info.Size()

	e.digest, err = identity.HashReader(fh)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", e.abs, err)
	}
	return nil
}

// build computes records bottom-up so every directory sees its children's IDs.
func build(e *entry, res *IngestResult) {
	rec := &NodeRecord{Path: e.rel, Size: e.size}
	if e.dir {
		rec.Kind = KindDirectory
		rec.Children = make([]identity.NodeID, 0, len(e.children))
		for _, c := range e.children {
			build(c, res)
			rec.Children = append(rec.Children, c.rec.ID)
		}
		res.Directories++
	} else {
		rec.Kind = KindFile
		d := e.digest
		rec.ContentDigest = &d
		res.Files++
	}
	rec.ID = rec.ComputeID()
	e.rec = rec
	res.Paths[e.rel] = rec.ID
}

// write stores e and its subtree. A record that already exists keeps the
// parent it was first written with.
func write(ctx context.Context, e *entry, parent *identity.NodeID, w NodeWriter, res *IngestResult) error {
	e.rec.Parent = parent
	written, err := w.PutNode(ctx, e.rec)
	if err != nil {
		return fmt.Errorf("writing node %s: %w", e.rel, err)
	}
	if written {
		res.Written++
	}

	id := e.rec.ID
	for _, c := range e.children {
		if err := write(ctx, c, &id, w, res); err != nil {
			return err
		}
	}
	return nil
}
