package sqldriver

import (
	"context"
	"database/sql"
	"time"

	"github.com/papercomputeco/frames/pkg/storage"
)

// LegacyHeads returns the rows of the retired frame_type_heads table.
func (d *Driver) LegacyHeads(ctx context.Context) ([]storage.LegacyHead, error) {
	rows, err := d.query(ctx, d.db,
		`SELECT node_id, agent_id, frame_type, frame_id, seq, updated_at FROM frame_type_heads
		 ORDER BY node_id, agent_id, frame_type`)
	if err != nil {
		return nil, d.wrap("legacy heads", err)
	}
	defer rows.Close()

	var out []storage.LegacyHead
	for rows.Next() {
		var (
			h              storage.LegacyHead
			node, fid      []byte
			seq, updatedAt int64
		)
		if err := rows.Scan(&node, &h.AgentID, &h.FrameType, &fid, &seq, &updatedAt); err != nil {
			return nil, d.wrap("legacy heads", err)
		}
		copy(h.NodeID[:], node)
		copy(h.FrameID[:], fid)
		h.Seq = uint64(seq)
		h.UpdatedAt = time.Unix(0, updatedAt).UTC()
		out = append(out, h)
	}
	return out, d.wrap("legacy heads", rows.Err())
}

// RestoreHead writes h verbatim. The frame must be stored; it joins the
// node's set at h.Seq if it is not already a member.
func (d *Driver) RestoreHead(ctx context.Context, h storage.Head) error {
	return d.inTx(ctx, "restore head", func(tx *sql.Tx) error {
		if _, err := d.ownedFrame(ctx, tx, h.NodeID, h.FrameID); err != nil {
			return err
		}

		if _, err := d.exec(ctx, tx,
			`INSERT INTO commits (seq, node_id, agent_id, frame_id, committed_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (seq) DO NOTHING`,
			int64(h.Seq), h.NodeID[:], h.AgentID, h.FrameID[:], h.UpdatedAt.UnixNano()); err != nil {
			return d.wrap("restore head", err)
		}
		if d.dialect.RestoreSeq != "" {
			if _, err := d.exec(ctx, tx, d.dialect.RestoreSeq, int64(h.Seq)); err != nil {
				return d.wrap("restore head", err)
			}
		}

		if _, err := d.addMember(ctx, tx, h.NodeID, h.FrameID, h.AgentID, h.Seq, h.UpdatedAt); err != nil {
			return d.wrap("restore head", err)
		}
		return d.wrap("restore head", d.writeHead(ctx, tx, h))
	})
}

// DropLegacyHeads empties the retired table.
func (d *Driver) DropLegacyHeads(ctx context.Context) error {
	_, err := d.exec(ctx, d.db, `DELETE FROM frame_type_heads`)
	return d.wrap("drop legacy heads", err)
}

// SeedLegacyHead inserts a row into the retired table. It exists for
// migration tests and for importing heads exported by older releases.
func (d *Driver) SeedLegacyHead(ctx context.Context, h storage.LegacyHead) error {
	_, err := d.exec(ctx, d.db,
		`INSERT INTO frame_type_heads (node_id, agent_id, frame_type, frame_id, seq, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.NodeID[:], h.AgentID, h.FrameType, h.FrameID[:], int64(h.Seq), h.UpdatedAt.UnixNano())
	return d.wrap("seed legacy head", err)
}
