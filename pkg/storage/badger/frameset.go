package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// ownedFrame loads frame id and checks it belongs to the known node.
func ownedFrame(txn *badger.Txn, node identity.NodeID, id identity.FrameID) (*frame.Frame, error) {
	if err := requireNode(txn, node); err != nil {
		return nil, err
	}
	f, err := readFrame(txn, id)
	if err != nil {
		return nil, err
	}
	if f.NodeID != node {
		return nil, storage.ConflictError{Reason: "frame " + id.String() + " belongs to node " + f.NodeID.String()}
	}
	return f, nil
}

// addMember inserts a member if absent and returns the resulting root.
func addMember(txn *badger.Txn, node identity.NodeID, id identity.FrameID, agentID string, seq uint64, at time.Time) (identity.Digest, error) {
	ok, err := exists(txn, memberKey(node, id))
	if err != nil {
		return identity.Digest{}, err
	}
	if ok {
		return readRoot(txn, node)
	}

	if err := setJSON(txn, memberKey(node, id), memberRecord{AgentID: agentID, Seq: seq, AddedAt: at}); err != nil {
		return identity.Digest{}, err
	}
	if err := txn.Set(recencyKey(node, seq, id), nil); err != nil {
		return identity.Digest{}, err
	}

	prefix := key(prefixMember, node[:])
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var ids []identity.FrameID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var fid identity.FrameID
		copy(fid[:], it.Item().Key()[len(prefix):])
		ids = append(ids, fid)
	}
	it.Close()

	root := merkle.FrameSetRoot(ids)
	return root, txn.Set(rootKey(node), root[:])
}

func readRoot(txn *badger.Txn, node identity.NodeID) (identity.Digest, error) {
	item, err := txn.Get(rootKey(node))
	if err == badger.ErrKeyNotFound {
		return merkle.EmptyFrameSetRoot, nil
	}
	if err != nil {
		return identity.Digest{}, err
	}
	var root identity.Digest
	err = item.Value(func(val []byte) error {
		copy(root[:], val)
		return nil
	})
	return root, err
}

// AddToFrameSet adds an already stored frame to its node's set.
func (d *Driver) AddToFrameSet(_ context.Context, node identity.NodeID, id identity.FrameID) (identity.Digest, error) {
	var root identity.Digest
	err := d.update("add to frame set", func(txn *badger.Txn) error {
		f, err := ownedFrame(txn, node, id)
		if err != nil {
			return err
		}
		if ok, err := exists(txn, memberKey(node, id)); err != nil || ok {
			if err == nil {
				root, err = readRoot(txn, node)
			}
			return err
		}
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		root, err = addMember(txn, node, id, f.AgentID, seq, d.now())
		return err
	})
	return root, err
}

// FrameSetContains reports whether id is a member of node's set.
func (d *Driver) FrameSetContains(_ context.Context, node identity.NodeID, id identity.FrameID) (bool, error) {
	var ok bool
	err := d.db.View(func(txn *badger.Txn) error {
		if err := requireNode(txn, node); err != nil {
			return err
		}
		var err error
		ok, err = exists(txn, memberKey(node, id))
		return err
	})
	return ok, wrap("frame set contains", err)
}

// FrameSetRoot returns node's current set root.
func (d *Driver) FrameSetRoot(_ context.Context, node identity.NodeID) (identity.Digest, error) {
	var root identity.Digest
	err := d.db.View(func(txn *badger.Txn) error {
		if err := requireNode(txn, node); err != nil {
			return err
		}
		var err error
		root, err = readRoot(txn, node)
		return err
	})
	return root, wrap("frame set root", err)
}

// FrameSetMembers lists members newest first by walking the recency index
// backwards, stopping once the limit is reached.
func (d *Driver) FrameSetMembers(_ context.Context, node identity.NodeID, q storage.MemberQuery) ([]storage.Member, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	out := []storage.Member{}
	err := d.db.View(func(txn *badger.Txn) error {
		if err := requireNode(txn, node); err != nil {
			return err
		}

		prefix := key(prefixRecency, node[:])
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix) && len(out) < q.Limit; it.Next() {
			var fid identity.FrameID
			copy(fid[:], it.Item().Key()[len(prefix)+8:])

			var rec memberRecord
			ok, err := getJSON(txn, memberKey(node, fid), &rec)
			if err != nil {
				return err
			}
			if !ok || !q.Admits(rec.AgentID) {
				continue
			}
			out = append(out, storage.Member{FrameID: fid, AgentID: rec.AgentID, Seq: rec.Seq, AddedAt: rec.AddedAt})
		}
		return nil
	})
	if err != nil {
		return nil, wrap("frame set members", err)
	}
	return out, nil
}
