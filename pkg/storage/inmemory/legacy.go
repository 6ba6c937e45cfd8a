package inmemory

import (
	"context"
	"slices"

	"github.com/papercomputeco/frames/pkg/storage"
)

// SeedLegacyHead records a head under the retired key scheme.
func (d *Driver) SeedLegacyHead(h storage.LegacyHead) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.legacy = append(d.legacy, h)
}

// LegacyHeads returns the heads recorded under the retired key scheme.
func (d *Driver) LegacyHeads(_ context.Context) ([]storage.LegacyHead, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.legacy), nil
}

// RestoreHead writes h verbatim. The frame must be stored; it joins the
// node's set at h.Seq if it is not already a member.
func (d *Driver) RestoreHead(_ context.Context, h storage.Head) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, err := d.memberFrame(h.NodeID, h.FrameID)
	if err != nil {
		return err
	}
	if _, ok := set.members[h.FrameID]; !ok {
		d.addMember(set, h.FrameID, h.AgentID, h.Seq, h.UpdatedAt)
	}
	d.heads[headKey{h.NodeID, h.AgentID}] = h
	d.seq = max(d.seq, h.Seq)
	return nil
}

// DropLegacyHeads forgets every legacy head.
func (d *Driver) DropLegacyHeads(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.legacy = nil
	return nil
}
