package generation_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
	testutils "github.com/papercomputeco/frames/pkg/utils/test"
)

var _ = Describe("Queue", func() {
	var (
		ctx       context.Context
		driver    *inmemory.Driver
		publisher *testutils.RecordingPublisher
		store     *contextstore.Store
		gen       *testutils.MockGenerator
		cfg       generation.Config
		q         *generation.Queue
		node      identity.NodeID
		other     identity.NodeID
		third     identity.NodeID
	)

	start := func() {
		var err error
		q, err = generation.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			if gen.Gate != nil {
				select {
				case <-gen.Gate:
				default:
					close(gen.Gate)
				}
			}
			Expect(q.Close(context.Background())).To(Succeed())
		})
	}

	await := func(h generation.Handle) *generation.Outcome {
		out, err := q.Await(ctx, h, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	gate := func() {
		gen.Gate = make(chan struct{})
		gen.Started = make(chan struct{}, 16)
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		publisher = testutils.NewRecordingPublisher()

		agents, err := agent.NewRegistry(agent.Agent{ID: "summarizer"}, agent.Agent{ID: "reviewer"})
		Expect(err).NotTo(HaveOccurred())
		store, err = contextstore.New(contextstore.Config{
			Driver:    driver,
			Agents:    agents,
			Publisher: publisher,
		})
		Expect(err).NotTo(HaveOccurred())

		node = storagetest.PutFileNode(ctx, driver, "pkg/a.go", "package a")
		other = storagetest.PutFileNode(ctx, driver, "pkg/b.go", "package b")
		third = storagetest.PutFileNode(ctx, driver, "pkg/c.go", "package c")

		gen = testutils.NewMockGenerator()
		cfg = generation.Config{
			Store:          store,
			Generator:      gen,
			Collector:      &testutils.MockCollector{},
			Workers:        2,
			QueueSize:      8,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Registerer:     prometheus.NewRegistry(),
		}
	})

	Describe("New", func() {
		It("requires a store, generator and collector", func() {
			_, err := generation.New(generation.Config{Generator: gen, Collector: &testutils.MockCollector{}})
			Expect(err).To(HaveOccurred())
			_, err = generation.New(generation.Config{Store: store, Collector: &testutils.MockCollector{}})
			Expect(err).To(HaveOccurred())
			_, err = generation.New(generation.Config{Store: store, Generator: gen})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Submit", func() {
		BeforeEach(start)

		It("generates and commits a head in sync mode", func() {
			h, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{Timeout: 5 * time.Second})
			Expect(err).NotTo(HaveOccurred())
			Expect(h).NotTo(BeEmpty())
			Expect(out.State).To(Equal(generation.StateCompleted))
			Expect(out.Skipped).To(BeFalse())
			Expect(out.Attempts).To(Equal(1))
			Expect(out.Commit).NotTo(BeNil())

			head, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(head.FrameID).To(Equal(out.FrameID))

			f, err := store.GetFrame(ctx, out.FrameID)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(f.Content)).To(HavePrefix("summarizer on "))
		})

		It("returns only the handle in async mode", func() {
			h, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{Mode: generation.ModeAsync})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeNil())
			Expect(await(h).State).To(Equal(generation.StateCompleted))
		})

		It("publishes the commit with the request handle", func() {
			h, _, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Source.RequestID).To(Equal(string(h)))
			Expect(events[0].Source.Origin).To(Equal("generation"))
		})

		It("attaches validated metadata to the frame", func() {
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{
				Metadata: map[string]string{" Model ": "mock"},
			})
			Expect(err).NotTo(HaveOccurred())
			f, err := store.GetFrame(ctx, out.FrameID)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Metadata).To(HaveKeyWithValue("model", "mock"))
		})
	})

	Describe("admission", func() {
		BeforeEach(start)

		It("rejects unknown agents as a policy violation", func() {
			_, err := q.Enqueue(ctx, node, "ghost", generation.RequestOptions{})
			var ua agent.UnknownAgentError
			Expect(errors.As(err, &ua)).To(BeTrue())
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindPolicyViolation))
		})

		It("rejects unknown nodes", func() {
			_, err := q.Enqueue(ctx, identity.NodeID{9}, "summarizer", generation.RequestOptions{})
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindNotFound))
		})

		It("rejects invalid metadata before admission", func() {
			_, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{
				Metadata: map[string]string{"Bad Key!": "x"},
			})
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindPolicyViolation))
			Expect(q.Stats().Pending).To(BeZero())
		})
	})

	Describe("single-flight", func() {
		BeforeEach(func() {
			gate()
			start()
		})

		It("runs one generation for concurrent requests on the same pair", func() {
			const callers = 8
			handles := make([]generation.Handle, callers)

			var wg sync.WaitGroup
			for i := range callers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					h, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
					Expect(err).NotTo(HaveOccurred())
					handles[i] = h
				}()
			}
			wg.Wait()

			for _, h := range handles {
				Expect(h).To(Equal(handles[0]))
			}
			Eventually(gen.Started).Should(Receive())
			close(gen.Gate)

			out := await(handles[0])
			Expect(out.State).To(Equal(generation.StateCompleted))
			Expect(gen.Calls()).To(Equal(1))
			Expect(testutil.ToFloat64(q.Metrics().Attached)).To(Equal(float64(callers - 1)))

			members, err := driver.FrameSetMembers(ctx, node, storage.MemberQuery{Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveLen(1))
		})

		It("keeps distinct agents on the same node independent", func() {
			a, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			b, err := q.Enqueue(ctx, node, "reviewer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(a).NotTo(Equal(b))

			close(gen.Gate)
			Expect(await(a).State).To(Equal(generation.StateCompleted))
			Expect(await(b).State).To(Equal(generation.StateCompleted))
			Expect(gen.Calls()).To(Equal(2))
		})
	})

	Describe("skip and force", func() {
		BeforeEach(start)

		It("skips a pair that already has a head", func() {
			_, first, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			_, again, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.State).To(Equal(generation.StateCompleted))
			Expect(again.Skipped).To(BeTrue())
			Expect(again.FrameID).To(Equal(first.FrameID))
			Expect(gen.Calls()).To(Equal(1))
			Expect(q.Stats().Skipped).To(Equal(1))
		})

		It("regenerates when forced", func() {
			_, _, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			gen.Content["node-override"] = "second take"
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{Force: true, Source: "node-override"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Skipped).To(BeFalse())
			Expect(gen.Calls()).To(Equal(2))

			head, _, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(head.FrameID).To(Equal(out.FrameID))
		})
	})

	Describe("retries", func() {
		BeforeEach(start)

		It("retries transient failures and then succeeds", func() {
			gen.FailNext(
				generator.Transient(errors.New("overloaded")),
				generator.Transient(errors.New("rate limited")),
			)
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateCompleted))
			Expect(out.Attempts).To(Equal(3))
		})

		It("does not retry permanent failures", func() {
			gen.FailNext(errors.New("invalid request"))
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))
			Expect(out.Err).To(MatchError("invalid request"))
			Expect(out.Attempts).To(Equal(1))
			Expect(gen.Calls()).To(Equal(1))

			_, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("fails with the last transient error once retries are exhausted", func() {
			for range generation.DefaultMaxRetries + 1 {
				gen.FailNext(generator.Transient(errors.New("overloaded")))
			}
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))
			Expect(out.Attempts).To(Equal(generation.DefaultMaxRetries + 1))
			Expect(contextstore.KindOf(out.Err)).To(Equal(contextstore.KindTransient))
		})

		It("releases the pair after a failure", func() {
			gen.FailNext(errors.New("invalid request"))
			_, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))

			_, out, err = q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateCompleted))
		})

		It("fails when the context cannot be collected", func() {
			cfg.Collector = &testutils.MockCollector{Err: generator.StaleNodeError{Path: "pkg/a.go"}}
			cfg.Registerer = nil
			stale, err := generation.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer stale.Close(ctx)

			_, out, err := stale.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))
			Expect(gen.Calls()).To(BeZero())
		})
	})

	Describe("Cancel", func() {
		BeforeEach(func() {
			cfg.Workers = 1
			gate()
			start()
		})

		It("cancels a running request before it commits", func() {
			h, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(gen.Started).Should(Receive())

			Expect(q.Cancel(h)).To(Succeed())
			out := await(h)
			Expect(out.State).To(Equal(generation.StateFailed))
			Expect(out.Err).To(MatchError(generation.ErrCancelled))
			Expect(contextstore.KindOf(out.Err)).To(Equal(contextstore.KindCancelled))

			_, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("fails a pending request immediately", func() {
			running, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(gen.Started).Should(Receive())

			pending, err := q.Enqueue(ctx, other, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Cancel(pending)).To(Succeed())

			out, err := q.Status(pending)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))
			Expect(out.Attempts).To(BeZero())

			close(gen.Gate)
			Expect(await(running).State).To(Equal(generation.StateCompleted))
			Expect(gen.Calls()).To(Equal(1))
		})

		It("is a no-op on finished requests", func() {
			close(gen.Gate)
			h, _, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Cancel(h)).To(Succeed())

			out, err := q.Status(h)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateCompleted))
		})

		It("refuses once the commit has started", func() {
			publisher.Gate = make(chan struct{})
			publisher.Started = make(chan struct{}, 1)
			close(gen.Gate)

			h, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(publisher.Started).Should(Receive())

			err = q.Cancel(h)
			Expect(err).To(MatchError(generation.ErrNotCancellable))
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindConflict))

			close(publisher.Gate)
			Expect(await(h).State).To(Equal(generation.StateCompleted))
		})

		It("reports unknown handles as not found", func() {
			err := q.Cancel("nope")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("Await", func() {
		BeforeEach(func() {
			gate()
			start()
		})

		It("times out without stopping the request", func() {
			h, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(gen.Started).Should(Receive())

			_, err = q.Await(ctx, h, 10*time.Millisecond)
			Expect(err).To(MatchError(generation.ErrTimeout))
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindTimeout))

			out, err := q.Status(h)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateRunning))

			close(gen.Gate)
			Expect(await(h).State).To(Equal(generation.StateCompleted))
		})

		It("times out a sync submit with the request left running", func() {
			h, out, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{Timeout: 10 * time.Millisecond})
			Expect(err).To(MatchError(generation.ErrTimeout))
			Expect(out).To(BeNil())
			Expect(h).NotTo(BeEmpty())

			close(gen.Gate)
			Expect(await(h).State).To(Equal(generation.StateCompleted))
		})
	})

	Describe("capacity", func() {
		BeforeEach(func() {
			cfg.Workers = 1
			cfg.QueueSize = 1
			gate()
			start()
		})

		It("rejects requests when the queue is full", func() {
			_, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(gen.Started).Should(Receive())

			_, err = q.Enqueue(ctx, other, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			_, err = q.Enqueue(ctx, third, "summarizer", generation.RequestOptions{})
			Expect(err).To(MatchError(generation.ErrQueueFull))
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindTransient))

			stats := q.Stats()
			Expect(stats.Running).To(Equal(1))
			Expect(stats.Pending).To(Equal(1))
		})
	})

	Describe("Close", func() {
		BeforeEach(start)

		It("drains admitted requests and stops admission", func() {
			h, err := q.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Close(ctx)).To(Succeed())

			out, err := q.Status(h)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateCompleted))

			_, err = q.Enqueue(ctx, other, "summarizer", generation.RequestOptions{})
			Expect(err).To(MatchError(generation.ErrQueueClosed))
		})
	})

	Describe("history", func() {
		BeforeEach(func() {
			cfg.HistorySize = 1
			start()
		})

		It("forgets the oldest finished requests", func() {
			first, _, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			second, _, err := q.Submit(ctx, other, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			_, err = q.Status(first)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			_, err = q.Status(second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("counts outcomes", func() {
			_, _, err := q.Submit(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			gen.FailNext(errors.New("invalid request"))
			_, _, err = q.Submit(ctx, other, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())

			m := q.Metrics()
			Expect(testutil.ToFloat64(m.Requests.WithLabelValues("completed"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.Requests.WithLabelValues("failed"))).To(Equal(1.0))
			Expect(q.Stats().Completed).To(Equal(1))
			Expect(q.Stats().Failed).To(Equal(1))
		})
	})
})
