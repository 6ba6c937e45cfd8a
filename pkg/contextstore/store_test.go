package contextstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
	testutils "github.com/papercomputeco/frames/pkg/utils/test"
	"github.com/papercomputeco/frames/pkg/view"
)

var _ = Describe("Store", func() {
	var (
		ctx       context.Context
		driver    *inmemory.Driver
		publisher *testutils.RecordingPublisher
		metrics   *contextstore.Metrics
		store     *contextstore.Store
		node      identity.NodeID
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		publisher = testutils.NewRecordingPublisher()
		metrics = contextstore.NewMetrics(prometheus.NewRegistry())

		agents, err := agent.NewRegistry(agent.Agent{ID: "summarizer"}, agent.Agent{ID: "reviewer"})
		Expect(err).NotTo(HaveOccurred())

		store, err = contextstore.New(contextstore.Config{
			Driver:    driver,
			Agents:    agents,
			Publisher: publisher,
			Metrics:   metrics,
		})
		Expect(err).NotTo(HaveOccurred())
		node = storagetest.PutFileNode(ctx, driver, "cmd/main.go", "package main")
	})

	Describe("Write", func() {
		It("commits frame, set membership and head together", func() {
			res, err := store.Write(ctx, contextstore.WriteRequest{
				NodeID:   node,
				AgentID:  "summarizer",
				Content:  []byte("entrypoint"),
				Metadata: map[string]string{"model": "static"},
			})
			Expect(err).NotTo(HaveOccurred())
			id := res.Frame.ID

			got, err := store.GetFrame(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Metadata).To(HaveKeyWithValue("model", "static"))

			contains, err := store.Contains(ctx, node, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(contains).To(BeTrue())

			head, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(head.FrameID).To(Equal(id))
		})

		It("publishes one event per commit", func() {
			res, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("a")})
			Expect(err).NotTo(HaveOccurred())

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Commit.FrameID).To(Equal(res.Frame.ID))
			Expect(events[0].Source.Origin).To(Equal(eventstream.OriginWrite))
			Expect(testutil.ToFloat64(metrics.Commits.WithLabelValues("write", "true"))).To(Equal(1.0))
		})

		It("does not fail when publishing fails", func() {
			publisher.FailWith = errors.New("stream down")
			_, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("a")})
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(metrics.PublishErrors)).To(Equal(1.0))
		})

		It("supersedes the previous head", func() {
			first, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("v1")})
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("v2")})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Commit.PreviousHead).To(HaveValue(Equal(first.Frame.ID)))

			heads, err := store.GetAllHeadsForNode(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(heads).To(HaveLen(1))
			Expect(heads[0].FrameID).To(Equal(second.Frame.ID))

			contains, err := store.Contains(ctx, node, first.Frame.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(contains).To(BeTrue())
		})

		DescribeTable("rejects invalid writes without side effects",
			func(req func() contextstore.WriteRequest, kind contextstore.ErrorKind) {
				_, err := store.Write(ctx, req())
				Expect(contextstore.KindOf(err)).To(Equal(kind))

				stats, err := store.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Frames).To(BeZero())
				Expect(stats.Heads).To(BeZero())
				Expect(publisher.Events()).To(BeEmpty())
			},
			Entry("unknown agent", func() contextstore.WriteRequest {
				return contextstore.WriteRequest{NodeID: node, AgentID: "summariser", Content: []byte("x")}
			}, contextstore.KindPolicyViolation),
			Entry("raw payload metadata", func() contextstore.WriteRequest {
				return contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("x"), Metadata: map[string]string{"prompt": "full prompt"}}
			}, contextstore.KindPolicyViolation),
			Entry("unknown node", func() contextstore.WriteRequest {
				return contextstore.WriteRequest{NodeID: identity.NodeID{7}, AgentID: "summarizer", Content: []byte("x")}
			}, contextstore.KindNotFound),
			Entry("duplicate identity fields", func() contextstore.WriteRequest {
				f := identity.Field{Name: "lang", Value: []byte("go")}
				return contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("x"), Fields: []identity.Field{f, f}}
			}, contextstore.KindPolicyViolation),
		)

		It("keeps one head per pair under concurrent writers", func() {
			var wg sync.WaitGroup
			for i := range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := store.Write(ctx, contextstore.WriteRequest{
						NodeID:  node,
						AgentID: []string{"summarizer", "reviewer"}[i%2],
						Content: fmt.Appendf(nil, "v%d", i),
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			heads, err := store.GetAllHeadsForNode(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(heads).To(HaveLen(2))
			for _, h := range heads {
				contains, err := store.Contains(ctx, node, h.FrameID)
				Expect(err).NotTo(HaveOccurred())
				Expect(contains).To(BeTrue())
			}

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Frames).To(Equal(int64(16)))
			Expect(stats.Members).To(Equal(int64(16)))
		})
	})

	Describe("GetFrame", func() {
		It("surfaces integrity violations", func() {
			res, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: []byte("original")})
			Expect(err).NotTo(HaveOccurred())

			corrupted := res.Frame.Clone()
			corrupted.Content = []byte("tampered")
			driver.Overwrite(corrupted)

			_, err = store.GetFrame(ctx, res.Frame.ID)
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindIntegrityViolation))
			Expect(testutil.ToFloat64(metrics.IntegrityErrors)).To(Equal(1.0))
		})

		It("reports missing frames", func() {
			_, err := store.GetFrame(ctx, identity.FrameID{1})
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindNotFound))
		})
	})

	Describe("SelectView", func() {
		It("composes over committed frames", func() {
			for i := range 5 {
				_, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: "summarizer", Content: fmt.Appendf(nil, "v%d", i)})
				Expect(err).NotTo(HaveOccurred())
			}
			entries, err := store.SelectView(ctx, node, view.Policy{MaxFrames: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].IsHead).To(BeTrue())
		})

		It("classifies invalid policies", func() {
			_, err := store.SelectView(ctx, node, view.Policy{MaxFrames: 100000})
			Expect(contextstore.KindOf(err)).To(Equal(contextstore.KindPolicyViolation))
		})
	})

	Describe("IngestTree", func() {
		It("writes node records for a directory", func() {
			dir := GinkgoT().TempDir()
			res, err := store.IngestTree(ctx, dir, ingestOptions())
			Expect(err).NotTo(HaveOccurred())

			rec, err := store.GetNode(ctx, res.Root)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.IsDir()).To(BeTrue())

			root, err := store.FrameSetRoot(ctx, res.Root)
			Expect(err).NotTo(HaveOccurred())
			Expect(root).NotTo(BeZero())
		})
	})
})
