// Package generation runs the asynchronous generation pipeline: admission
// with single-flight per (node, agent), a bounded worker pool, retry of
// transient provider failures and an atomic commit through the context
// store.
//
// A request moves pending -> running -> completed | failed. At most one
// request per identity is pending or running at any time; duplicate
// submissions attach to it and observe its outcome. The admission table is
// the only shared state and is never held across a provider call.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultHistorySize    = 1024
)

// Config wires a Queue.
type Config struct {
	Store     *contextstore.Store
	Generator generator.Generator
	Collector generator.Collector

	// Workers bounds concurrent requests. QueueSize bounds requests waiting
	// for a worker.
	Workers   int
	QueueSize int

	// MaxRetries is the number of retries after the first attempt for
	// transient generator failures. Negative disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// ProviderRPS limits generator calls per second across all workers.
	// Zero is unlimited.
	ProviderRPS   float64
	ProviderBurst int

	// HistorySize bounds how many finished requests stay queryable.
	HistorySize int

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Stats counts requests by state.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Queued    int `json:"queued"`
}

// Queue is the generation queue.
type Queue struct {
	store     *contextstore.Store
	gen       generator.Generator
	collector generator.Collector
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *Metrics

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	historySize    int

	base context.Context
	stop context.CancelCauseFunc

	mu       sync.Mutex
	closed   bool
	inflight map[Identity]*request
	requests map[Handle]*request
	history  []Handle
	counts   Stats

	pool *pool
}

// New creates a Queue and starts its workers.
func New(cfg Config) (*Queue, error) {
	if cfg.Store == nil {
		return nil, errors.New("generation queue requires a context store")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generation queue requires a generator")
	}
	if cfg.Collector == nil {
		return nil, errors.New("generation queue requires a collector")
	}

	q := &Queue{
		store:          cfg.Store,
		gen:            cfg.Generator,
		collector:      cfg.Collector,
		logger:         cfg.Logger,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		historySize:    cfg.HistorySize,
		inflight:       make(map[Identity]*request),
		requests:       make(map[Handle]*request),
	}
	if q.logger == nil {
		q.logger = slog.New(slog.DiscardHandler)
	}
	if q.maxRetries == 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.maxRetries < 0 {
		q.maxRetries = 0
	}
	if q.initialBackoff <= 0 {
		q.initialBackoff = DefaultInitialBackoff
	}
	if q.maxBackoff <= 0 {
		q.maxBackoff = DefaultMaxBackoff
	}
	if q.historySize <= 0 {
		q.historySize = DefaultHistorySize
	}

	q.limiter = rate.NewLimiter(rate.Inf, 0)
	if cfg.ProviderRPS > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), max(cfg.ProviderBurst, 1))
	}

	q.base, q.stop = context.WithCancelCause(context.Background())
	q.pool = newPool(cfg.Workers, cfg.QueueSize, q.logger, q.run)
	q.metrics = newMetrics(cfg.Registerer, func() float64 { return float64(q.pool.depth()) })
	return q, nil
}

// Metrics returns the queue's collectors.
func (q *Queue) Metrics() *Metrics {
	return q.metrics
}

// Enqueue admits a generation request for (node, agentID) and returns its
// handle. If a request for the same pair is pending or running, its handle
// is returned instead and no new request is created. Without opts.Force, a
// pair that already has a head completes immediately as skipped.
//
// Validation failures are returned directly and never admitted.
func (q *Queue) Enqueue(ctx context.Context, node identity.NodeID, agentID string, opts RequestOptions) (Handle, error) {
	id := Identity{NodeID: node, AgentID: agentID}

	if h, ok, err := q.attach(id); ok || err != nil {
		return h, err
	}

	if err := q.store.Agents().Check(agentID); err != nil {
		return "", err
	}
	md, err := q.store.ValidateMetadata(opts.Metadata)
	if err != nil {
		return "", err
	}
	opts.Metadata = md
	if _, err := q.store.GetNode(ctx, node); err != nil {
		return "", err
	}

	var head *storage.Head
	if !opts.Force {
		h, ok, err := q.store.GetHead(ctx, node, agentID)
		if err != nil {
			return "", err
		}
		if ok {
			head = &h
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if r, ok := q.inflight[id]; ok {
		q.metrics.Attached.Inc()
		return r.handle, nil
	}

	now := time.Now().UTC()
	r := &request{
		handle: Handle(uuid.NewString()),
		id:     id,
		opts:   opts,
		state:  StatePending,
		done:   make(chan struct{}),
	}
	r.outcome.EnqueuedAt = now
	q.requests[r.handle] = r

	if head != nil {
		r.outcome.Skipped = true
		r.outcome.FrameID = head.FrameID
		q.finishLocked(r, StateCompleted, nil)
		q.logger.Debug("generation skipped, head exists",
			"request_id", string(r.handle), "node_id", node.String(), "agent_id", agentID, "frame_id", head.FrameID.String())
		return r.handle, nil
	}

	r.ctx, r.cancel = context.WithCancelCause(q.base)
	if !q.pool.enqueue(r) {
		delete(q.requests, r.handle)
		r.cancel(ErrQueueFull)
		return "", ErrQueueFull
	}
	q.inflight[id] = r
	q.counts.Pending++
	q.metrics.InFlight.Inc()

	q.logger.Debug("generation queued",
		"request_id", string(r.handle), "node_id", node.String(), "agent_id", agentID, "force", opts.Force)
	return r.handle, nil
}

func (q *Queue) attach(id Identity) (Handle, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", false, ErrQueueClosed
	}
	if r, ok := q.inflight[id]; ok {
		q.metrics.Attached.Inc()
		return r.handle, true, nil
	}
	return "", false, nil
}

// Submit enqueues a request and, in sync mode, waits for its outcome for up
// to opts.Timeout. In async mode the returned outcome is nil.
func (q *Queue) Submit(ctx context.Context, node identity.NodeID, agentID string, opts RequestOptions) (Handle, *Outcome, error) {
	h, err := q.Enqueue(ctx, node, agentID, opts)
	if err != nil {
		return "", nil, err
	}
	if opts.Mode == ModeAsync {
		return h, nil, nil
	}
	out, err := q.Await(ctx, h, opts.Timeout)
	return h, out, err
}

// Await blocks until the request is terminal, the timeout expires or ctx
// ends. Expiry returns ErrTimeout and leaves the request running. A
// terminal failure is reported in Outcome.Err, not as Await's error.
func (q *Queue) Await(ctx context.Context, h Handle, timeout time.Duration) (*Outcome, error) {
	q.mu.Lock()
	r, ok := q.requests[h]
	q.mu.Unlock()
	if !ok {
		return nil, unknownRequest(h)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-r.done:
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	out := r.snapshot()
	return &out, nil
}

// Status returns a snapshot of the request.
func (q *Queue) Status(h Handle) (*Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.requests[h]
	if !ok {
		return nil, unknownRequest(h)
	}
	out := r.snapshot()
	return &out, nil
}

// Cancel requests cancellation. A pending request fails immediately. A
// running request fails at its next checkpoint, before its commit starts;
// once committing it cannot be cancelled and ErrNotCancellable is returned.
// Cancelling a finished request is a no-op.
func (q *Queue) Cancel(h Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.requests[h]
	if !ok {
		return unknownRequest(h)
	}

	switch {
	case r.state.Terminal():
		return nil
	case r.committing:
		return ErrNotCancellable
	case r.state == StatePending:
		r.cancel(ErrCancelled)
		q.finishLocked(r, StateFailed, ErrCancelled)
	default:
		r.cancelRequested = true
		r.cancel(ErrCancelled)
	}
	q.logger.Info("generation cancel requested", "request_id", string(h), "node_id", r.id.NodeID.String(), "agent_id", r.id.AgentID)
	return nil
}

// Stats returns request counts. Pending and Running are current; Completed,
// Skipped and Failed are cumulative.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.counts
	s.Queued = q.pool.depth()
	return s
}

// Close stops admission and drains queued and running requests. If ctx ends
// first, remaining requests are cancelled and Close waits for the workers
// to observe it.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.pool.close()
		close(drained)
	}()

	select {
	case <-drained:
		q.stop(ErrQueueClosed)
		return nil
	case <-ctx.Done():
		q.stop(ErrCancelled)
		<-drained
		return ctx.Err()
	}
}

// run executes one request on a worker.
func (q *Queue) run(r *request) {
	q.mu.Lock()
	if r.state != StatePending {
		q.mu.Unlock()
		return
	}
	r.state = StateRunning
	r.outcome.StartedAt = time.Now().UTC()
	q.counts.Pending--
	q.counts.Running++
	q.mu.Unlock()

	logger := q.logger.With("request_id", string(r.handle), "node_id", r.id.NodeID.String(), "agent_id", r.id.AgentID)
	logger.Debug("generation started")

	content, err := q.generate(r, logger)
	if err != nil {
		q.finish(r, StateFailed, err)
		return
	}

	q.mu.Lock()
	if r.cancelRequested || r.ctx.Err() != nil {
		q.mu.Unlock()
		q.finish(r, StateFailed, q.cancelCause(r))
		return
	}
	r.committing = true
	q.mu.Unlock()

	res, err := q.store.Write(context.WithoutCancel(r.ctx), contextstore.WriteRequest{
		NodeID:    r.id.NodeID,
		AgentID:   r.id.AgentID,
		Content:   content,
		Metadata:  r.opts.Metadata,
		Origin:    eventstream.OriginGeneration,
		RequestID: string(r.handle),
	})
	if err != nil {
		logger.Error("generation commit failed", "error", err)
		q.finish(r, StateFailed, err)
		return
	}

	q.mu.Lock()
	r.outcome.FrameID = res.Frame.ID
	r.outcome.Commit = res.Commit
	q.mu.Unlock()
	logger.Info("generation committed", "frame_id", res.Frame.ID.String(), "seq", res.Commit.Seq)
	q.finish(r, StateCompleted, nil)
}

// generate collects context and calls the generator, retrying transient
// failures. Cancellation is observed between attempts and during waits.
func (q *Queue) generate(r *request, logger *slog.Logger) ([]byte, error) {
	if r.ctx.Err() != nil {
		return nil, q.cancelCause(r)
	}

	ag, err := q.store.Agents().Lookup(r.id.AgentID)
	if err != nil {
		return nil, err
	}
	nc, err := q.collector.Collect(r.ctx, r.id.NodeID, r.opts.Source)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, q.cancelCause(r)
		}
		return nil, fmt.Errorf("collecting context: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.initialBackoff
	bo.MaxInterval = q.maxBackoff

	attempt := func() ([]byte, error) {
		if err := q.limiter.Wait(r.ctx); err != nil {
			return nil, backoff.Permanent(q.cancelCause(r))
		}

		q.mu.Lock()
		r.outcome.Attempts++
		q.mu.Unlock()

		content, err := q.gen.Generate(r.ctx, nc, ag)
		switch {
		case err == nil && len(content) == 0:
			q.metrics.ProviderCalls.WithLabelValues("error").Inc()
			return nil, backoff.Permanent(generator.ErrEmptyContent)
		case err == nil:
			q.metrics.ProviderCalls.WithLabelValues("ok").Inc()
			return content, nil
		case r.ctx.Err() != nil:
			return nil, backoff.Permanent(q.cancelCause(r))
		case generator.IsTransient(err), storage.IsTransient(err):
			q.metrics.ProviderCalls.WithLabelValues("transient").Inc()
			return nil, err
		default:
			q.metrics.ProviderCalls.WithLabelValues("error").Inc()
			return nil, backoff.Permanent(err)
		}
	}

	content, err := backoff.Retry(r.ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(q.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("transient generation failure, retrying", "error", err, "backoff", next)
		}),
	)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, q.cancelCause(r)
		}
		return nil, err
	}
	return content, nil
}

func (q *Queue) cancelCause(r *request) error {
	if cause := context.Cause(r.ctx); cause != nil {
		return cause
	}
	return ErrCancelled
}

func (q *Queue) finish(r *request, state State, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	q.finishLocked(r, state, err)
}

// finishLocked moves r to a terminal state, releases its identity and
// wakes waiters. q.mu must be held.
func (q *Queue) finishLocked(r *request, state State, err error) {
	switch r.state {
	case StatePending:
		if q.inflight[r.id] == r {
			q.counts.Pending--
		}
	case StateRunning:
		q.counts.Running--
	}
	if q.inflight[r.id] == r {
		delete(q.inflight, r.id)
		q.metrics.InFlight.Dec()
	}
	if r.cancel != nil {
		r.cancel(nil)
	}

	r.state = state
	r.committing = false
	r.outcome.Err = err
	r.outcome.FinishedAt = time.Now().UTC()

	label := "completed"
	switch {
	case state == StateFailed && errors.Is(err, ErrCancelled):
		label = "cancelled"
		q.counts.Failed++
	case state == StateFailed:
		label = "failed"
		q.counts.Failed++
	case r.outcome.Skipped:
		label = "skipped"
		q.counts.Skipped++
	default:
		q.counts.Completed++
	}
	q.metrics.Requests.WithLabelValues(label).Inc()
	q.metrics.Duration.WithLabelValues(label).Observe(r.outcome.FinishedAt.Sub(r.outcome.EnqueuedAt).Seconds())
	if state == StateFailed {
		q.logger.Warn("generation failed", "request_id", string(r.handle), "node_id", r.id.NodeID.String(), "agent_id", r.id.AgentID, "error", err)
	}

	close(r.done)
	q.remember(r.handle)
}

// remember records a finished request and evicts the oldest beyond the
// history bound.
func (q *Queue) remember(h Handle) {
	q.history = append(q.history, h)
	for len(q.history) > q.historySize {
		delete(q.requests, q.history[0])
		q.history = q.history[1:]
	}
}
