package badger

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/papercomputeco/frames/pkg/storage"
)

// LegacyHeads returns every head stored under the retired H: keys.
func (d *Driver) LegacyHeads(_ context.Context) ([]storage.LegacyHead, error) {
	var out []storage.LegacyHead
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixLegacyHead
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixLegacyHead); it.ValidForPrefix(prefixLegacyHead); it.Next() {
			item := it.Item()
			node, agentID, frameType, ok := parseLegacyHeadKey(item.Key())
			if !ok {
				continue
			}
			var rec headRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			out = append(out, storage.LegacyHead{
				NodeID:    node,
				AgentID:   agentID,
				FrameType: frameType,
				FrameID:   rec.FrameID,
				Seq:       rec.Seq,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		return nil
	})
	return out, wrap("legacy heads", err)
}

// RestoreHead writes h verbatim. The frame must be stored; it joins the
// node's set at h.Seq if it is not already a member. The sequence counter
// is raised to h.Seq when behind.
func (d *Driver) RestoreHead(_ context.Context, h storage.Head) error {
	return d.update("restore head", func(txn *badger.Txn) error {
		if _, err := ownedFrame(txn, h.NodeID, h.FrameID); err != nil {
			return err
		}
		seq, err := currentSeq(txn)
		if err != nil {
			return err
		}
		if h.Seq > seq {
			if err := txn.Set(keySeq, encodeSeq(h.Seq)); err != nil {
				return err
			}
		}
		if _, err := addMember(txn, h.NodeID, h.FrameID, h.AgentID, h.Seq, h.UpdatedAt); err != nil {
			return err
		}
		return writeHead(txn, h)
	})
}

// DropLegacyHeads deletes every retired head key.
func (d *Driver) DropLegacyHeads(_ context.Context) error {
	return wrap("drop legacy heads", d.db.DropPrefix(prefixLegacyHead))
}

// SeedLegacyHead writes a head under the retired key scheme.
func (d *Driver) SeedLegacyHead(_ context.Context, h storage.LegacyHead) error {
	return d.update("seed legacy head", func(txn *badger.Txn) error {
		return setJSON(txn, legacyHeadKey(h.NodeID, h.AgentID, h.FrameType),
			headRecord{FrameID: h.FrameID, Seq: h.Seq, UpdatedAt: h.UpdatedAt})
	})
}
