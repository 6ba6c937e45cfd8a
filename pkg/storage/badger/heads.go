package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

func readHead(txn *badger.Txn, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	var rec headRecord
	ok, err := getJSON(txn, headKey(node, agentID), &rec)
	if err != nil || !ok {
		return storage.Head{}, false, err
	}
	return storage.Head{NodeID: node, AgentID: agentID, FrameID: rec.FrameID, Seq: rec.Seq, UpdatedAt: rec.UpdatedAt}, true, nil
}

func writeHead(txn *badger.Txn, h storage.Head) error {
	return setJSON(txn, headKey(h.NodeID, h.AgentID), headRecord{FrameID: h.FrameID, Seq: h.Seq, UpdatedAt: h.UpdatedAt})
}

// GetHead returns the head of (node, agentID).
func (d *Driver) GetHead(_ context.Context, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	var (
		h  storage.Head
		ok bool
	)
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		h, ok, err = readHead(txn, node, agentID)
		return err
	})
	return h, ok, wrap("get head", err)
}

// UpdateHead points (node, agentID) at a frame already in node's set.
func (d *Driver) UpdateHead(_ context.Context, node identity.NodeID, agentID string, id identity.FrameID) (storage.Head, error) {
	var h storage.Head
	err := d.update("update head", func(txn *badger.Txn) error {
		f, err := ownedFrame(txn, node, id)
		if err != nil {
			return err
		}
		if f.AgentID != agentID {
			return storage.ConflictError{Reason: "frame " + id.String() + " belongs to agent " + f.AgentID}
		}
		member, err := exists(txn, memberKey(node, id))
		if err != nil {
			return err
		}
		if !member {
			return storage.ConflictError{Reason: "frame " + id.String() + " is not in the frame set of " + node.String()}
		}

		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		h = storage.Head{NodeID: node, AgentID: agentID, FrameID: id, Seq: seq, UpdatedAt: d.now()}
		return writeHead(txn, h)
	})
	return h, err
}

// HeadsForNode returns every head of node, ordered by agent.
func (d *Driver) HeadsForNode(_ context.Context, node identity.NodeID) ([]storage.Head, error) {
	out := []storage.Head{}
	err := d.db.View(func(txn *badger.Txn) error {
		if err := requireNode(txn, node); err != nil {
			return err
		}

		prefix := key(prefixHead, node[:])
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec headRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			out = append(out, storage.Head{
				NodeID:    node,
				AgentID:   string(keySuffix(item.Key(), prefix)),
				FrameID:   rec.FrameID,
				Seq:       rec.Seq,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrap("heads for node", err)
	}
	return out, nil
}

// Commit stores f, adds it to its node's set and moves the head in one
// badger transaction.
func (d *Driver) Commit(_ context.Context, f *frame.Frame) (*storage.CommitResult, error) {
	if f == nil {
		return nil, errors.New("cannot commit nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return nil, err
	}

	var res *storage.CommitResult
	err := d.update("commit", func(txn *badger.Txn) error {
		if err := requireNode(txn, f.NodeID); err != nil {
			return err
		}

		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		now := d.now()
		r := &storage.CommitResult{FrameID: f.ID, Seq: seq}

		if r.NewFrame, err = putFrame(txn, f); err != nil {
			return err
		}
		if r.Root, err = addMember(txn, f.NodeID, f.ID, f.AgentID, seq, now); err != nil {
			return err
		}

		prev, ok, err := readHead(txn, f.NodeID, f.AgentID)
		if err != nil {
			return err
		}
		if ok {
			id := prev.FrameID
			r.PreviousHead = &id
		}

		if err := writeHead(txn, storage.Head{NodeID: f.NodeID, AgentID: f.AgentID, FrameID: f.ID, Seq: seq, UpdatedAt: now}); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
