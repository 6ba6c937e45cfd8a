package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// AddToFrameSet adds an already stored frame to its node's set.
func (d *Driver) AddToFrameSet(ctx context.Context, node identity.NodeID, id identity.FrameID) (identity.Digest, error) {
	var root identity.Digest
	err := d.inTx(ctx, "add to frame set", func(tx *sql.Tx) error {
		agentID, err := d.ownedFrame(ctx, tx, node, id)
		if err != nil {
			return err
		}
		seq, err := d.allocateSeq(ctx, tx, node, agentID, id)
		if err != nil {
			return d.wrap("add to frame set", err)
		}
		root, err = d.addMember(ctx, tx, node, id, agentID, seq, d.now())
		return d.wrap("add to frame set", err)
	})
	return root, err
}

// FrameSetContains reports whether id is a member of node's set.
func (d *Driver) FrameSetContains(ctx context.Context, node identity.NodeID, id identity.FrameID) (bool, error) {
	if err := d.requireNode(ctx, d.db, node); err != nil {
		return false, err
	}
	var one int
	err := d.queryRow(ctx, d.db,
		`SELECT 1 FROM frame_set_members WHERE node_id = ? AND frame_id = ?`, node[:], id[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, d.wrap("frame set contains", err)
	}
	return true, nil
}

// FrameSetRoot returns node's current set root.
func (d *Driver) FrameSetRoot(ctx context.Context, node identity.NodeID) (identity.Digest, error) {
	if err := d.requireNode(ctx, d.db, node); err != nil {
		return identity.Digest{}, err
	}
	root, err := d.readRoot(ctx, d.db, node)
	return root, d.wrap("frame set root", err)
}

// FrameSetMembers lists members newest first.
func (d *Driver) FrameSetMembers(ctx context.Context, node identity.NodeID, q storage.MemberQuery) ([]storage.Member, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := d.requireNode(ctx, d.db, node); err != nil {
		return nil, err
	}

	var (
		where strings.Builder
		args  = []any{node[:]}
	)
	where.WriteString("node_id = ?")
	if len(q.IncludeAgents) > 0 {
		where.WriteString(" AND agent_id IN (" + placeholders(len(q.IncludeAgents)) + ")")
		for _, a := range q.IncludeAgents {
			args = append(args, a)
		}
	}
	if len(q.ExcludeAgents) > 0 {
		where.WriteString(" AND agent_id NOT IN (" + placeholders(len(q.ExcludeAgents)) + ")")
		for _, a := range q.ExcludeAgents {
			args = append(args, a)
		}
	}
	args = append(args, q.Limit)

	rows, err := d.query(ctx, d.db,
		`SELECT frame_id, agent_id, seq, added_at FROM frame_set_members WHERE `+where.String()+
			` ORDER BY seq DESC, frame_id ASC LIMIT ?`, args...)
	if err != nil {
		return nil, d.wrap("frame set members", err)
	}
	defer rows.Close()

	out := []storage.Member{}
	for rows.Next() {
		var (
			m       storage.Member
			fid     []byte
			seq     int64
			addedAt int64
		)
		if err := rows.Scan(&fid, &m.AgentID, &seq, &addedAt); err != nil {
			return nil, d.wrap("frame set members", err)
		}
		copy(m.FrameID[:], fid)
		m.Seq = uint64(seq)
		m.AddedAt = time.Unix(0, addedAt).UTC()
		out = append(out, m)
	}
	return out, d.wrap("frame set members", rows.Err())
}

func (d *Driver) requireNode(ctx context.Context, q querier, node identity.NodeID) error {
	ok, err := d.nodeKnown(ctx, q, node)
	if err != nil {
		return d.wrap("lookup node", err)
	}
	if !ok {
		return storage.NodeUnknownError{NodeID: node}
	}
	return nil
}

// lockNode is requireNode inside a write transaction. Writers touching the
// same node serialize on it, so membership and root stay consistent.
func (d *Driver) lockNode(ctx context.Context, tx *sql.Tx, node identity.NodeID) error {
	if d.dialect.LockNode == "" {
		return d.requireNode(ctx, tx, node)
	}
	var one int
	err := d.queryRow(ctx, tx, d.dialect.LockNode, node[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NodeUnknownError{NodeID: node}
	}
	return d.wrap("lock node", err)
}

// ownedFrame checks that node is known and id is a stored frame of node,
// returning the frame's agent.
func (d *Driver) ownedFrame(ctx context.Context, tx *sql.Tx, node identity.NodeID, id identity.FrameID) (string, error) {
	if err := d.lockNode(ctx, tx, node); err != nil {
		return "", err
	}

	var (
		owner   []byte
		agentID string
	)
	err := d.queryRow(ctx, tx, `SELECT node_id, agent_id FROM frames WHERE id = ?`, id[:]).Scan(&owner, &agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.NotFoundError{Kind: storage.KindFrame, ID: id.String()}
	}
	if err != nil {
		return "", d.wrap("lookup frame", err)
	}

	var ownerID identity.NodeID
	copy(ownerID[:], owner)
	if ownerID != node {
		return "", storage.ConflictError{Reason: "frame " + id.String() + " belongs to node " + ownerID.String()}
	}
	return agentID, nil
}

// allocateSeq records a commit and returns its sequence number.
func (d *Driver) allocateSeq(ctx context.Context, q querier, node identity.NodeID, agentID string, id identity.FrameID) (uint64, error) {
	var seq int64
	err := d.queryRow(ctx, q,
		`INSERT INTO commits (node_id, agent_id, frame_id, committed_at) VALUES (?, ?, ?, ?) RETURNING seq`,
		node[:], agentID, id[:], d.now().UnixNano()).Scan(&seq)
	return uint64(seq), err
}

// addMember inserts a member if absent and returns the resulting root.
func (d *Driver) addMember(ctx context.Context, q querier, node identity.NodeID, id identity.FrameID, agentID string, seq uint64, at time.Time) (identity.Digest, error) {
	res, err := d.exec(ctx, q,
		`INSERT INTO frame_set_members (node_id, frame_id, agent_id, seq, added_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (node_id, frame_id) DO NOTHING`,
		node[:], id[:], agentID, int64(seq), at.UnixNano())
	if err != nil {
		return identity.Digest{}, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		if err != nil {
			return identity.Digest{}, err
		}
		return d.readRoot(ctx, q, node)
	}
	return d.recomputeRoot(ctx, q, node)
}

// recomputeRoot rebuilds node's root from its member rows. The read is
// bounded by the node's own frame set through the node_id index; the sorted
// set root has no cheaper update when a member lands mid-order.
func (d *Driver) recomputeRoot(ctx context.Context, q querier, node identity.NodeID) (identity.Digest, error) {
	rows, err := d.query(ctx, q, `SELECT frame_id FROM frame_set_members WHERE node_id = ?`, node[:])
	if err != nil {
		return identity.Digest{}, err
	}
	var ids []identity.FrameID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			rows.Close()
			return identity.Digest{}, err
		}
		var id identity.FrameID
		copy(id[:], b)
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return identity.Digest{}, err
	}

	root := merkle.FrameSetRoot(ids)
	_, err = d.exec(ctx, q,
		`INSERT INTO frame_set_roots (node_id, root, size) VALUES (?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET root = excluded.root, size = excluded.size`,
		node[:], root[:], int64(len(ids)))
	return root, err
}

func (d *Driver) readRoot(ctx context.Context, q querier, node identity.NodeID) (identity.Digest, error) {
	var b []byte
	err := d.queryRow(ctx, q, `SELECT root FROM frame_set_roots WHERE node_id = ?`, node[:]).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return merkle.EmptyFrameSetRoot, nil
	}
	if err != nil {
		return identity.Digest{}, err
	}
	var root identity.Digest
	copy(root[:], b)
	return root, nil
}
