// Package view composes bounded, deterministic views over a node's frames.
//
// A view is a pure function of the node's heads, its frame set and the
// policy. Current heads are selected first, newest first; remaining capacity
// is filled from the frame set in recency order. The result is then sorted
// by the policy's ordering.
package view

import (
	"bytes"
	"cmp"
	"context"
	"slices"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Source is the read-only state a view is composed from.
type Source interface {
	HeadsForNode(ctx context.Context, node identity.NodeID) ([]storage.Head, error)
	FrameSetMembers(ctx context.Context, node identity.NodeID, q storage.MemberQuery) ([]storage.Member, error)
}

// Entry is one frame in a view.
type Entry struct {
	FrameID identity.FrameID `json:"frame_id"`
	AgentID string           `json:"agent_id"`

	// Seq is the head's commit sequence for heads, and the sequence the
	// frame joined the set at otherwise.
	Seq    uint64 `json:"seq"`
	IsHead bool   `json:"is_head"`
}

// Select composes the view of node under policy. It never returns more than
// the policy's MaxFrames entries and never reads frame contents.
func Select(ctx context.Context, src Source, node identity.NodeID, policy Policy) ([]Entry, error) {
	p, err := policy.Normalize()
	if err != nil {
		return nil, err
	}

	heads, err := src.HeadsForNode(ctx, node)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, p.MaxFrames)
	for _, h := range heads {
		if p.admits(h.AgentID) {
			entries = append(entries, Entry{FrameID: h.FrameID, AgentID: h.AgentID, Seq: h.Seq, IsHead: true})
		}
	}
	sortRecency(entries)
	if len(entries) > p.MaxFrames {
		entries = entries[:p.MaxFrames]
	}

	if !p.HeadsOnly && len(entries) < p.MaxFrames {
		entries, err = fill(ctx, src, node, p, entries)
		if err != nil {
			return nil, err
		}
	}

	switch p.Ordering {
	case OrderAgent:
		slices.SortFunc(entries, func(a, b Entry) int {
			if c := cmp.Compare(a.AgentID, b.AgentID); c != 0 {
				return c
			}
			return compareRecency(a, b)
		})
	default:
		sortRecency(entries)
	}
	return entries, nil
}

// fill tops up entries with non-head members until the bound is reached.
// Selected frames can occupy at most len(entries) slots of the member
// listing, so asking for MaxFrames more rows is always enough.
func fill(ctx context.Context, src Source, node identity.NodeID, p Policy, entries []Entry) ([]Entry, error) {
	selected := make(map[identity.FrameID]struct{}, len(entries))
	for _, e := range entries {
		selected[e.FrameID] = struct{}{}
	}

	members, err := src.FrameSetMembers(ctx, node, storage.MemberQuery{
		IncludeAgents: p.IncludeAgents,
		ExcludeAgents: p.ExcludeAgents,
		Limit:         min(p.MaxFrames+len(entries), storage.MaxMemberLimit),
	})
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if len(entries) >= p.MaxFrames {
			break
		}
		if _, ok := selected[m.FrameID]; ok {
			continue
		}
		entries = append(entries, Entry{FrameID: m.FrameID, AgentID: m.AgentID, Seq: m.Seq})
	}
	return entries, nil
}

func sortRecency(entries []Entry) {
	slices.SortFunc(entries, compareRecency)
}

func compareRecency(a, b Entry) int {
	if c := cmp.Compare(b.Seq, a.Seq); c != 0 {
		return c
	}
	return bytes.Compare(a.FrameID[:], b.FrameID[:])
}

// FrameIDs projects a view onto its frame identifiers.
func FrameIDs(entries []Entry) []identity.FrameID {
	out := make([]identity.FrameID, len(entries))
	for i, e := range entries {
		out[i] = e.FrameID
	}
	return out
}
