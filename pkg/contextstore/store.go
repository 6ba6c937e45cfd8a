// Package contextstore coordinates the storage driver, the agent registry,
// metadata validation and event publishing into the store's upward query
// and write interface.
//
// Write is the single commit path. Direct writes and the generation queue
// both go through it, so a frame never exists without its frame set entry
// and head update.
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/eventstream/nop"
	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/metadata"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/view"
)

// MaxContentBytes bounds the content of a single frame.
const MaxContentBytes = 1 << 20

// Config wires a Store.
type Config struct {
	Driver storage.Driver

	// Agents restricts writes to registered agents. Nil accepts any
	// well-formed agent ID.
	Agents *agent.Registry

	// Metadata validates caller metadata. Nil applies the default policy.
	Metadata *metadata.Validator

	// Publisher receives an event per commit. Nil disables publishing.
	Publisher eventstream.Publisher

	Logger  *slog.Logger
	Metrics *Metrics

	// Now stamps frame creation times. Defaults to time.Now.
	Now func() time.Time
}

// Store is the coordinated context store.
type Store struct {
	driver    storage.Driver
	agents    *agent.Registry
	metadata  *metadata.Validator
	publisher eventstream.Publisher
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// WriteRequest is a direct, non-queued frame write.
type WriteRequest struct {
	NodeID   identity.NodeID
	AgentID  string
	Content  []byte
	Fields   []identity.Field
	Metadata map[string]string

	// Origin and RequestID describe the write in published events.
	Origin    string
	RequestID string
}

// WriteResult is the outcome of a committed write.
type WriteResult struct {
	Frame  *frame.Frame
	Commit *storage.CommitResult
}

// New creates a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Driver == nil {
		return nil, errors.New("context store requires a storage driver")
	}
	s := &Store{
		driver:    cfg.Driver,
		agents:    cfg.Agents,
		metadata:  cfg.Metadata,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if s.agents == nil {
		s.agents = agent.Open()
	}
	if s.metadata == nil {
		s.metadata = metadata.New(metadata.Config{})
	}
	if s.publisher == nil {
		s.publisher = nop.NewPublisher()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Driver returns the underlying storage driver.
func (s *Store) Driver() storage.Driver {
	return s.driver
}

// Agents returns the agent registry.
func (s *Store) Agents() *agent.Registry {
	return s.agents
}

// ValidateMetadata applies the store's metadata policy to md.
func (s *Store) ValidateMetadata(md map[string]string) (map[string]string, error) {
	return s.metadata.Validate(md)
}

// Prepare validates req and builds the frame it would commit, without
// writing anything. Every failure is deterministic and will repeat.
func (s *Store) Prepare(ctx context.Context, req WriteRequest) (*frame.Frame, error) {
	if err := s.agents.Check(req.AgentID); err != nil {
		return nil, err
	}
	if len(req.Content) > MaxContentBytes {
		return nil, metadata.PolicyError{Reason: fmt.Sprintf("content of %d bytes exceeds the limit of %d", len(req.Content), MaxContentBytes)}
	}
	md, err := s.metadata.Validate(req.Metadata)
	if err != nil {
		return nil, err
	}

	ok, err := s.driver.HasNode(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindNode, ID: req.NodeID.String()}
	}

	f, err := frame.New(req.NodeID, req.AgentID, req.Content, req.Fields, frame.Meta{
		Metadata:  md,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, metadata.PolicyError{Reason: err.Error()}
	}
	return f, nil
}

// Write validates req and commits its frame: store, frame set and head in
// one atomic driver commit. A commit event is published afterwards; publish
// failures are logged and never fail the write.
func (s *Store) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	f, err := s.Prepare(ctx, req)
	if err != nil {
		s.metrics.CommitErrors.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}

	start := time.Now()
	res, err := s.driver.Commit(ctx, f)
	s.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.CommitErrors.WithLabelValues(string(KindOf(err))).Inc()
		return nil, fmt.Errorf("committing frame %s for %s/%s: %w", f.ID.Short(), req.NodeID.Short(), req.AgentID, err)
	}

	origin := req.Origin
	if origin == "" {
		origin = eventstream.OriginWrite
	}
	s.metrics.Commits.WithLabelValues(origin, strconv.FormatBool(res.NewFrame)).Inc()
	s.logger.Debug("frame committed",
		"node_id", f.NodeID.String(),
		"agent_id", f.AgentID,
		"frame_id", f.ID.String(),
		"seq", res.Seq,
		"origin", origin,
		"new_frame", res.NewFrame,
	)

	s.publish(ctx, f, res, origin, req.RequestID)
	return &WriteResult{Frame: f, Commit: res}, nil
}

func (s *Store) publish(ctx context.Context, f *frame.Frame, res *storage.CommitResult, origin, requestID string) {
	event := eventstream.NewFrameCommittedEvent(
		eventstream.EventSource{AgentID: f.AgentID, Origin: origin, RequestID: requestID},
		eventstream.CommitMeta{
			NodeID:       f.NodeID,
			FrameID:      f.ID,
			Seq:          res.Seq,
			FrameSetRoot: res.Root,
			PreviousHead: res.PreviousHead,
			NewFrame:     res.NewFrame,
			ContentBytes: len(f.Content),
		},
	)
	if err := s.publisher.PublishFrame(context.WithoutCancel(ctx), event); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("failed to publish frame event",
			"frame_id", f.ID.String(), "event_id", event.EventID, "error", err)
	}
}

// GetHead returns the head for (node, agentID). ok is false when the pair
// has no head yet.
func (s *Store) GetHead(ctx context.Context, node identity.NodeID, agentID string) (storage.Head, bool, error) {
	return s.driver.GetHead(ctx, node, agentID)
}

// GetAllHeadsForNode returns every head of node, ordered by agent.
func (s *Store) GetAllHeadsForNode(ctx context.Context, node identity.NodeID) ([]storage.Head, error) {
	return s.driver.HeadsForNode(ctx, node)
}

// SelectView composes a bounded view of node.
func (s *Store) SelectView(ctx context.Context, node identity.NodeID, policy view.Policy) ([]view.Entry, error) {
	return view.Select(ctx, s.driver, node, policy)
}

// GetFrame returns a verified frame.
func (s *Store) GetFrame(ctx context.Context, id identity.FrameID) (*frame.Frame, error) {
	f, err := s.driver.GetFrame(ctx, id)
	if err != nil {
		if storage.IsIntegrity(err) {
			s.metrics.IntegrityErrors.Inc()
			s.logger.Error("frame failed integrity verification", "frame_id", id.String(), "error", err)
		}
		return nil, err
	}
	return f, nil
}

// Contains reports whether id is in node's frame set.
func (s *Store) Contains(ctx context.Context, node identity.NodeID, id identity.FrameID) (bool, error) {
	return s.driver.FrameSetContains(ctx, node, id)
}

// FrameSetRoot returns node's frame set root.
func (s *Store) FrameSetRoot(ctx context.Context, node identity.NodeID) (identity.Digest, error) {
	return s.driver.FrameSetRoot(ctx, node)
}

// GetNode returns a node record.
func (s *Store) GetNode(ctx context.Context, id identity.NodeID) (*merkle.NodeRecord, error) {
	return s.driver.GetNode(ctx, id)
}

// IngestTree snapshots the directory tree under root into node records.
func (s *Store) IngestTree(ctx context.Context, root string, opts merkle.IngestOptions) (*merkle.IngestResult, error) {
	res, err := merkle.Ingest(ctx, root, s.driver, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tree ingested",
		"root", root,
		"node_id", res.Root.String(),
		"files", res.Files,
		"directories", res.Directories,
		"written", res.Written,
	)
	return res, nil
}

// Stats returns driver record counts.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	return s.driver.Stats(ctx)
}

// Close closes the publisher and the driver.
func (s *Store) Close() error {
	return errors.Join(s.publisher.Close(), s.driver.Close())
}
