// Package migrate moves heads from the retired (node, agent, frame type) key
// scheme to the current (node, agent) scheme.
//
// The frame type component is dropped. When several legacy heads collapse
// onto one (node, agent) pair, or a current head already exists, the most
// recent wins: higher sequence, then later timestamp, then the larger
// FrameID. Every collision is logged and reported.
package migrate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Store is what a migration needs from a driver.
type Store interface {
	storage.LegacyHeadStore
	GetHead(ctx context.Context, node identity.NodeID, agentID string) (storage.Head, bool, error)
	HasFrame(ctx context.Context, id identity.FrameID) (bool, error)
}

// Conflict records one collision and how it was resolved.
type Conflict struct {
	NodeID   identity.NodeID  `json:"node_id"`
	AgentID  string           `json:"agent_id"`
	Kept     identity.FrameID `json:"kept"`
	Dropped  identity.FrameID `json:"dropped"`
	KeptFrom string           `json:"kept_from"`
}

// Report summarizes a migration run.
type Report struct {
	Read      int        `json:"read"`
	Written   int        `json:"written"`
	Orphaned  int        `json:"orphaned"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	DryRun    bool       `json:"dry_run"`
}

// Options tunes a run.
type Options struct {
	// DryRun resolves and reports without writing or dropping anything.
	DryRun bool

	// KeepLegacy leaves the retired keys in place after a successful run.
	KeepLegacy bool
}

type candidate struct {
	head   storage.Head
	source string
}

type pair struct {
	node  identity.NodeID
	agent string
}

// Run performs the migration. It is idempotent: running it again after the
// legacy keys are dropped reads nothing and writes nothing.
func Run(ctx context.Context, s Store, logger *slog.Logger, opts Options) (*Report, error) {
	legacy, err := s.LegacyHeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading legacy heads: %w", err)
	}

	report := &Report{Read: len(legacy), DryRun: opts.DryRun}
	winners := make(map[pair]candidate)
	var order []pair

	for _, lh := range legacy {
		ok, err := s.HasFrame(ctx, lh.FrameID)
		if err != nil {
			return nil, fmt.Errorf("checking frame %s: %w", lh.FrameID, err)
		}
		if !ok {
			report.Orphaned++
			logger.Warn("skipping legacy head for missing frame",
				"node", lh.NodeID.String(), "agent", lh.AgentID, "frame_type", lh.FrameType, "frame", lh.FrameID.String())
			continue
		}

		key := pair{lh.NodeID, lh.AgentID}
		next := candidate{
			head: storage.Head{
				NodeID:    lh.NodeID,
				AgentID:   lh.AgentID,
				FrameID:   lh.FrameID,
				Seq:       lh.Seq,
				UpdatedAt: lh.UpdatedAt,
			},
			source: "legacy:" + lh.FrameType,
		}

		cur, seen := winners[key]
		if !seen {
			winners[key] = next
			order = append(order, key)
			continue
		}
		kept, dropped := resolve(cur, next)
		winners[key] = kept
		report.Conflicts = append(report.Conflicts, conflict(logger, kept, dropped))
	}

	for _, key := range order {
		cand := winners[key]

		current, ok, err := s.GetHead(ctx, key.node, key.agent)
		if err != nil {
			return nil, fmt.Errorf("reading current head: %w", err)
		}
		if ok {
			existing := candidate{head: current, source: "current"}
			kept, dropped := resolve(existing, cand)
			if kept.head.FrameID != dropped.head.FrameID {
				report.Conflicts = append(report.Conflicts, conflict(logger, kept, dropped))
			}
			if kept.source == "current" {
				continue
			}
			cand = kept
		}

		if opts.DryRun {
			report.Written++
			continue
		}
		if err := s.RestoreHead(ctx, cand.head); err != nil {
			return nil, fmt.Errorf("restoring head for %s/%s: %w", key.node, key.agent, err)
		}
		report.Written++
	}

	if !opts.DryRun && !opts.KeepLegacy && len(legacy) > 0 {
		if err := s.DropLegacyHeads(ctx); err != nil {
			return nil, fmt.Errorf("dropping legacy heads: %w", err)
		}
	}

	logger.Info("head migration finished",
		"read", report.Read, "written", report.Written, "orphaned", report.Orphaned,
		"conflicts", len(report.Conflicts), "dry_run", opts.DryRun)
	return report, nil
}

// resolve orders two candidates for the same pair, most recent first.
func resolve(a, b candidate) (kept, dropped candidate) {
	if newer(a.head, b.head) {
		return a, b
	}
	return b, a
}

func newer(a, b storage.Head) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return bytes.Compare(a.FrameID[:], b.FrameID[:]) >= 0
}

func conflict(logger *slog.Logger, kept, dropped candidate) Conflict {
	logger.Warn("head migration conflict",
		"node", kept.head.NodeID.String(),
		"agent", kept.head.AgentID,
		"kept", kept.head.FrameID.String(),
		"kept_from", kept.source,
		"kept_seq", kept.head.Seq,
		"dropped", dropped.head.FrameID.String(),
		"dropped_from", dropped.source,
		"dropped_seq", dropped.head.Seq,
	)
	return Conflict{
		NodeID:   kept.head.NodeID,
		AgentID:  kept.head.AgentID,
		Kept:     kept.head.FrameID,
		Dropped:  dropped.head.FrameID,
		KeptFrom: kept.source,
	}
}

// SortConflicts orders conflicts by node then agent, for stable output.
func SortConflicts(cs []Conflict) {
	slices.SortFunc(cs, func(a, b Conflict) int {
		if c := bytes.Compare(a.NodeID[:], b.NodeID[:]); c != 0 {
			return c
		}
		return strings.Compare(a.AgentID, b.AgentID)
	})
}
