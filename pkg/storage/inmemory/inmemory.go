// Package inmemory provides a map backed storage driver for tests, demos and
// ephemeral stores.
package inmemory

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps guarded by a single
// lock, so Commit is trivially atomic.
type Driver struct {
	// mu guards every map below and seq
	mu sync.RWMutex

	nodes  map[identity.NodeID]*merkle.NodeRecord
	frames map[identity.FrameID]*frame.Frame
	sets   map[identity.NodeID]*frameSet
	heads  map[headKey]storage.Head
	legacy []storage.LegacyHead

	// seq is the last allocated commit sequence
	seq uint64

	now func() time.Time
}

type frameSet struct {
	members map[identity.FrameID]storage.Member
	root    identity.Digest
}

type headKey struct {
	node  identity.NodeID
	agent string
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		nodes:  make(map[identity.NodeID]*merkle.NodeRecord),
		frames: make(map[identity.FrameID]*frame.Frame),
		sets:   make(map[identity.NodeID]*frameSet),
		heads:  make(map[headKey]storage.Head),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PutNode stores a record. Returns false if the NodeID already existed.
func (d *Driver) PutNode(_ context.Context, rec *merkle.NodeRecord) (bool, error) {
	if rec == nil {
		return false, errors.New("cannot store nil node")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.nodes[rec.ID]; ok {
		return false, nil
	}
	d.nodes[rec.ID] = cloneRecord(rec)
	d.sets[rec.ID] = &frameSet{
		members: make(map[identity.FrameID]storage.Member),
		root:    merkle.EmptyFrameSetRoot,
	}
	return true, nil
}

// GetNode retrieves a record by NodeID.
func (d *Driver) GetNode(_ context.Context, id identity.NodeID) (*merkle.NodeRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.nodes[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindNode, ID: id.String()}
	}
	return cloneRecord(rec), nil
}

// HasNode checks if a record exists.
func (d *Driver) HasNode(_ context.Context, id identity.NodeID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.nodes[id]
	return ok, nil
}

// PutFrame stores a frame by its verified ID.
func (d *Driver) PutFrame(_ context.Context, f *frame.Frame) (identity.FrameID, error) {
	if f == nil {
		return identity.FrameID{}, errors.New("cannot store nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return identity.FrameID{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.frames[f.ID]; !ok {
		d.frames[f.ID] = f.Clone()
	}
	return f.ID, nil
}

// GetFrame retrieves a frame and re-verifies its identifier.
func (d *Driver) GetFrame(_ context.Context, id identity.FrameID) (*frame.Frame, error) {
	d.mu.RLock()
	f, ok := d.frames[id]
	d.mu.RUnlock()

	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindFrame, ID: id.String()}
	}
	out := f.Clone()
	out.ID = id
	if err := storage.VerifyFrame(out); err != nil {
		return nil, err
	}
	return out, nil
}

// HasFrame checks if a frame exists.
func (d *Driver) HasFrame(_ context.Context, id identity.FrameID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.frames[id]
	return ok, nil
}

// AddToFrameSet adds an already stored frame to its node's set.
func (d *Driver) AddToFrameSet(_ context.Context, node identity.NodeID, id identity.FrameID) (identity.Digest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, err := d.memberFrame(node, id)
	if err != nil {
		return identity.Digest{}, err
	}
	if _, ok := set.members[id]; ok {
		return set.root, nil
	}

	d.seq++
	d.addMember(set, id, d.frames[id].AgentID, d.seq, d.now())
	return set.root, nil
}

// FrameSetContains reports whether id is a member of node's set.
func (d *Driver) FrameSetContains(_ context.Context, node identity.NodeID, id identity.FrameID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.sets[node]
	if !ok {
		return false, storage.NodeUnknownError{NodeID: node}
	}
	_, ok = set.members[id]
	return ok, nil
}

// FrameSetRoot returns node's current set root.
func (d *Driver) FrameSetRoot(_ context.Context, node identity.NodeID) (identity.Digest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.sets[node]
	if !ok {
		return identity.Digest{}, storage.NodeUnknownError{NodeID: node}
	}
	return set.root, nil
}

// FrameSetMembers lists members newest first.
func (d *Driver) FrameSetMembers(_ context.Context, node identity.NodeID, q storage.MemberQuery) ([]storage.Member, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.sets[node]
	if !ok {
		return nil, storage.NodeUnknownError{NodeID: node}
	}

	out := make([]storage.Member, 0, min(len(set.members), q.Limit))
	for _, m := range set.members {
		if q.Admits(m.AgentID) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b storage.Member) int {
		if c := cmp.Compare(b.Seq, a.Seq); c != 0 {
			return c
		}
		return bytes.Compare(a.FrameID[:], b.FrameID[:])
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// GetHead returns the head of (node, agentID).
func (d *Driver) GetHead(_ context.Context, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.heads[headKey{node, agentID}]
	return h, ok, nil
}

// UpdateHead points (node, agentID) at a frame already in node's set.
func (d *Driver) UpdateHead(_ context.Context, node identity.NodeID, agentID string, id identity.FrameID) (storage.Head, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, err := d.memberFrame(node, id)
	if err != nil {
		return storage.Head{}, err
	}
	if _, ok := set.members[id]; !ok {
		return storage.Head{}, storage.ConflictError{Reason: "frame " + id.String() + " is not in the frame set of " + node.String()}
	}
	if f := d.frames[id]; f.AgentID != agentID {
		return storage.Head{}, storage.ConflictError{Reason: "frame " + id.String() + " belongs to agent " + f.AgentID}
	}

	d.seq++
	h := storage.Head{NodeID: node, AgentID: agentID, FrameID: id, Seq: d.seq, UpdatedAt: d.now()}
	d.heads[headKey{node, agentID}] = h
	return h, nil
}

// HeadsForNode returns every head of node, ordered by agent.
func (d *Driver) HeadsForNode(_ context.Context, node identity.NodeID) ([]storage.Head, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.nodes[node]; !ok {
		return nil, storage.NodeUnknownError{NodeID: node}
	}

	out := []storage.Head{}
	for k, h := range d.heads {
		if k.node == node {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b storage.Head) int { return cmp.Compare(a.AgentID, b.AgentID) })
	return out, nil
}

// Commit stores f, adds it to its node's set and moves the head, all under
// one lock acquisition.
func (d *Driver) Commit(_ context.Context, f *frame.Frame) (*storage.CommitResult, error) {
	if f == nil {
		return nil, errors.New("cannot commit nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.sets[f.NodeID]
	if !ok {
		return nil, storage.NodeUnknownError{NodeID: f.NodeID}
	}

	d.seq++
	now := d.now()
	res := &storage.CommitResult{FrameID: f.ID, Seq: d.seq}

	if _, ok := d.frames[f.ID]; !ok {
		d.frames[f.ID] = f.Clone()
		res.NewFrame = true
	}
	if _, ok := set.members[f.ID]; !ok {
		d.addMember(set, f.ID, f.AgentID, d.seq, now)
	}

	key := headKey{f.NodeID, f.AgentID}
	if prev, ok := d.heads[key]; ok {
		id := prev.FrameID
		res.PreviousHead = &id
	}
	d.heads[key] = storage.Head{NodeID: f.NodeID, AgentID: f.AgentID, FrameID: f.ID, Seq: d.seq, UpdatedAt: now}

	res.Root = set.root
	return res, nil
}

// Stats returns record counts.
func (d *Driver) Stats(_ context.Context) (storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := storage.Stats{
		Nodes:  int64(len(d.nodes)),
		Frames: int64(len(d.frames)),
		Heads:  int64(len(d.heads)),
	}
	for _, set := range d.sets {
		s.Members += int64(len(set.members))
	}
	return s, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// Overwrite replaces the stored bytes of a frame without verification,
// simulating corruption of the underlying medium.
func (d *Driver) Overwrite(f *frame.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames[f.ID] = f.Clone()
}

// memberFrame checks that node is known and id is a stored frame of node.
// Callers hold mu.
func (d *Driver) memberFrame(node identity.NodeID, id identity.FrameID) (*frameSet, error) {
	set, ok := d.sets[node]
	if !ok {
		return nil, storage.NodeUnknownError{NodeID: node}
	}
	f, ok := d.frames[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindFrame, ID: id.String()}
	}
	if f.NodeID != node {
		return nil, storage.ConflictError{Reason: "frame " + id.String() + " belongs to node " + f.NodeID.String()}
	}
	return set, nil
}

// addMember rebuilds the root from the node's own members.
func (d *Driver) addMember(set *frameSet, id identity.FrameID, agentID string, seq uint64, at time.Time) {
	set.members[id] = storage.Member{FrameID: id, AgentID: agentID, Seq: seq, AddedAt: at}
	ids := make([]identity.FrameID, 0, len(set.members))
	for m := range set.members {
		ids = append(ids, m)
	}
	set.root = merkle.FrameSetRoot(ids)
}

func cloneRecord(rec *merkle.NodeRecord) *merkle.NodeRecord {
	c := *rec
	c.Children = slices.Clone(rec.Children)
	if rec.Parent != nil {
		p := *rec.Parent
		c.Parent = &p
	}
	if rec.ContentDigest != nil {
		dg := *rec.ContentDigest
		c.ContentDigest = &dg
	}
	return &c
}
