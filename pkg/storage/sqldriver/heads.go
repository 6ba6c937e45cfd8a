package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

// GetHead returns the head of (node, agentID).
func (d *Driver) GetHead(ctx context.Context, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	h, ok, err := d.readHead(ctx, d.db, node, agentID)
	return h, ok, d.wrap("get head", err)
}

func (d *Driver) readHead(ctx context.Context, q querier, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	var (
		fid       []byte
		seq       int64
		updatedAt int64
	)
	err := d.queryRow(ctx, q,
		`SELECT frame_id, seq, updated_at FROM heads WHERE node_id = ? AND agent_id = ?`, node[:], agentID).
		Scan(&fid, &seq, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Head{}, false, nil
	}
	if err != nil {
		return storage.Head{}, false, err
	}

	h := storage.Head{NodeID: node, AgentID: agentID, Seq: uint64(seq), UpdatedAt: time.Unix(0, updatedAt).UTC()}
	copy(h.FrameID[:], fid)
	return h, true, nil
}

func (d *Driver) writeHead(ctx context.Context, q querier, h storage.Head) error {
	_, err := d.exec(ctx, q,
		`INSERT INTO heads (node_id, agent_id, frame_id, seq, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (node_id, agent_id) DO UPDATE
		 SET frame_id = excluded.frame_id, seq = excluded.seq, updated_at = excluded.updated_at`,
		h.NodeID[:], h.AgentID, h.FrameID[:], int64(h.Seq), h.UpdatedAt.UnixNano())
	return err
}

// UpdateHead points (node, agentID) at a frame already in node's set.
func (d *Driver) UpdateHead(ctx context.Context, node identity.NodeID, agentID string, id identity.FrameID) (storage.Head, error) {
	var h storage.Head
	err := d.inTx(ctx, "update head", func(tx *sql.Tx) error {
		owner, err := d.ownedFrame(ctx, tx, node, id)
		if err != nil {
			return err
		}
		if owner != agentID {
			return storage.ConflictError{Reason: "frame " + id.String() + " belongs to agent " + owner}
		}

		var one int
		err = d.queryRow(ctx, tx,
			`SELECT 1 FROM frame_set_members WHERE node_id = ? AND frame_id = ?`, node[:], id[:]).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConflictError{Reason: "frame " + id.String() + " is not in the frame set of " + node.String()}
		}
		if err != nil {
			return d.wrap("update head", err)
		}

		seq, err := d.allocateSeq(ctx, tx, node, agentID, id)
		if err != nil {
			return d.wrap("update head", err)
		}
		h = storage.Head{NodeID: node, AgentID: agentID, FrameID: id, Seq: seq, UpdatedAt: d.now()}
		return d.wrap("update head", d.writeHead(ctx, tx, h))
	})
	return h, err
}

// HeadsForNode returns every head of node, ordered by agent.
func (d *Driver) HeadsForNode(ctx context.Context, node identity.NodeID) ([]storage.Head, error) {
	if err := d.requireNode(ctx, d.db, node); err != nil {
		return nil, err
	}

	rows, err := d.query(ctx, d.db,
		`SELECT agent_id, frame_id, seq, updated_at FROM heads WHERE node_id = ? ORDER BY agent_id`, node[:])
	if err != nil {
		return nil, d.wrap("heads for node", err)
	}
	defer rows.Close()

	out := []storage.Head{}
	for rows.Next() {
		var (
			h         = storage.Head{NodeID: node}
			fid       []byte
			seq       int64
			updatedAt int64
		)
		if err := rows.Scan(&h.AgentID, &fid, &seq, &updatedAt); err != nil {
			return nil, d.wrap("heads for node", err)
		}
		copy(h.FrameID[:], fid)
		h.Seq = uint64(seq)
		h.UpdatedAt = time.Unix(0, updatedAt).UTC()
		out = append(out, h)
	}
	return out, d.wrap("heads for node", rows.Err())
}

// Commit stores f, adds it to its node's set and moves the head in one
// transaction.
func (d *Driver) Commit(ctx context.Context, f *frame.Frame) (*storage.CommitResult, error) {
	if f == nil {
		return nil, errors.New("cannot commit nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return nil, err
	}

	var res *storage.CommitResult
	err := d.inTx(ctx, "commit", func(tx *sql.Tx) error {
		if err := d.lockNode(ctx, tx, f.NodeID); err != nil {
			return err
		}

		seq, err := d.allocateSeq(ctx, tx, f.NodeID, f.AgentID, f.ID)
		if err != nil {
			return d.wrap("commit", err)
		}
		now := d.now()
		res = &storage.CommitResult{FrameID: f.ID, Seq: seq}

		if res.NewFrame, err = d.insertFrame(ctx, tx, f); err != nil {
			return d.wrap("commit", err)
		}
		if res.Root, err = d.addMember(ctx, tx, f.NodeID, f.ID, f.AgentID, seq, now); err != nil {
			return d.wrap("commit", err)
		}

		prev, ok, err := d.readHead(ctx, tx, f.NodeID, f.AgentID)
		if err != nil {
			return d.wrap("commit", err)
		}
		if ok {
			id := prev.FrameID
			res.PreviousHead = &id
		}

		head := storage.Head{NodeID: f.NodeID, AgentID: f.AgentID, FrameID: f.ID, Seq: seq, UpdatedAt: now}
		return d.wrap("commit", d.writeHead(ctx, tx, head))
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
