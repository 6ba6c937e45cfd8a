// Package storagetest holds the behavioral suite every storage.Driver must
// pass. Driver packages register it from their own ginkgo suites.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Factory opens a fresh, empty driver.
type Factory func() storage.Driver

// Corruption tampers with a stored frame behind the driver's back.
type Corruption struct {
	// Content overwrites the stored content without re-hashing it.
	Content func(d storage.Driver, id identity.FrameID, content []byte)

	// Bytes damages the stored record so it no longer decodes. Drivers that
	// keep frames as Go values leave it nil.
	Bytes func(d storage.Driver, id identity.FrameID)
}

// PutFileNode stores a file record for path and returns its ID.
func PutFileNode(ctx context.Context, d storage.NodeStore, path, content string) identity.NodeID {
	digest := identity.HashContent([]byte(content))
	rec := &merkle.NodeRecord{
		Path:          identity.CanonicalPath(path),
		Kind:          merkle.KindFile,
		ContentDigest: &digest,
		Size:          int64(len(content)),
	}
	rec.ID = rec.ComputeID()
	_, err := d.PutNode(ctx, rec)
	Expect(err).NotTo(HaveOccurred())
	return rec.ID
}

// NewFrame builds a frame or fails the test.
func NewFrame(node identity.NodeID, agentID, content string) *frame.Frame {
	f, err := frame.New(node, agentID, []byte(content), nil)
	Expect(err).NotTo(HaveOccurred())
	return f
}

// DescribeDriver registers the conformance suite for one driver.
func DescribeDriver(name string, open Factory, corrupt Corruption) bool {
	return Describe(name+" driver conformance", func() {
		var (
			ctx    context.Context
			driver storage.Driver
			node   identity.NodeID
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = open()
			node = PutFileNode(ctx, driver, "src/main.go", "package main")
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("nodes", func() {
			It("stores records idempotently", func() {
				digest := identity.HashContent([]byte("x"))
				rec := &merkle.NodeRecord{Path: "x", Kind: merkle.KindFile, ContentDigest: &digest, Size: 1}
				rec.ID = rec.ComputeID()

				created, err := driver.PutNode(ctx, rec)
				Expect(err).NotTo(HaveOccurred())
				Expect(created).To(BeTrue())

				created, err = driver.PutNode(ctx, rec)
				Expect(err).NotTo(HaveOccurred())
				Expect(created).To(BeFalse())
			})

			It("round trips directory records", func() {
				child := PutFileNode(ctx, driver, "d/a.txt", "a")
				rec := &merkle.NodeRecord{Path: "d", Kind: merkle.KindDirectory, Children: []identity.NodeID{child}}
				rec.ID = rec.ComputeID()
				_, err := driver.PutNode(ctx, rec)
				Expect(err).NotTo(HaveOccurred())

				got, err := driver.GetNode(ctx, rec.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Path).To(Equal("d"))
				Expect(got.Kind).To(Equal(merkle.KindDirectory))
				Expect(got.Children).To(Equal([]identity.NodeID{child}))
				Expect(got.ContentDigest).To(BeNil())
				Expect(got.ComputeID()).To(Equal(rec.ID))
			})

			It("reports missing records", func() {
				_, err := driver.GetNode(ctx, identity.NodeID{1})
				Expect(storage.IsNotFound(err)).To(BeTrue())

				ok, err := driver.HasNode(ctx, identity.NodeID{1})
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})
		})

		Describe("frames", func() {
			It("rejects a frame whose ID does not match its content", func() {
				f := NewFrame(node, "summarizer", "real")
				f.Content = []byte("forged")
				_, err := driver.PutFrame(ctx, f)
				Expect(storage.IsIntegrity(err)).To(BeTrue())
			})

			It("stores and retrieves frames", func() {
				f := NewFrame(node, "summarizer", "hello")
				f.Metadata = map[string]string{"model": "m1"}
				id, err := driver.PutFrame(ctx, f)
				Expect(err).NotTo(HaveOccurred())
				Expect(id).To(Equal(f.ID))

				got, err := driver.GetFrame(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Content).To(Equal([]byte("hello")))
				Expect(got.AgentID).To(Equal("summarizer"))
				Expect(got.NodeID).To(Equal(node))
				Expect(got.Metadata).To(HaveKeyWithValue("model", "m1"))

				has, err := driver.HasFrame(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(has).To(BeTrue())
			})

			It("reports missing frames", func() {
				_, err := driver.GetFrame(ctx, identity.FrameID{9})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("detects corrupted stored bytes", func() {
				f := NewFrame(node, "summarizer", "pristine")
				_, err := driver.Commit(ctx, f)
				Expect(err).NotTo(HaveOccurred())

				corrupt.Content(driver, f.ID, []byte("bit rot"))

				_, err = driver.GetFrame(ctx, f.ID)
				Expect(storage.IsIntegrity(err)).To(BeTrue())
				var ie storage.IntegrityError
				Expect(err).To(BeAssignableToTypeOf(ie))
			})

			It("reports undecodable stored records as integrity violations", func() {
				if corrupt.Bytes == nil {
					Skip(name + " keeps frames as decoded values")
				}
				f := NewFrame(node, "summarizer", "pristine")
				_, err := driver.Commit(ctx, f)
				Expect(err).NotTo(HaveOccurred())

				corrupt.Bytes(driver, f.ID)

				_, err = driver.GetFrame(ctx, f.ID)
				Expect(err).To(HaveOccurred())
				Expect(storage.IsIntegrity(err)).To(BeTrue(), err.Error())

				var ie storage.IntegrityError
				Expect(errors.As(err, &ie)).To(BeTrue())
				Expect(ie.FrameID).To(Equal(f.ID))
			})
		})

		Describe("Commit", func() {
			It("rejects unknown nodes", func() {
				f := NewFrame(identity.NodeID{7}, "summarizer", "x")
				_, err := driver.Commit(ctx, f)
				Expect(storage.IsNodeUnknown(err)).To(BeTrue())

				has, err := driver.HasFrame(ctx, f.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(has).To(BeFalse())
			})

			It("stores the frame, adds membership and moves the head together", func() {
				f := NewFrame(node, "summarizer", "v1")
				res, err := driver.Commit(ctx, f)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.FrameID).To(Equal(f.ID))
				Expect(res.NewFrame).To(BeTrue())
				Expect(res.PreviousHead).To(BeNil())
				Expect(res.Root).To(Equal(merkle.FrameSetRoot([]identity.FrameID{f.ID})))

				head, ok, err := driver.GetHead(ctx, node, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(head.FrameID).To(Equal(f.ID))
				Expect(head.Seq).To(Equal(res.Seq))

				in, err := driver.FrameSetContains(ctx, node, f.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(in).To(BeTrue())

				root, err := driver.FrameSetRoot(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(root).To(Equal(res.Root))
			})

			It("replaces the head and keeps history in the set", func() {
				v1 := NewFrame(node, "summarizer", "v1")
				v2 := NewFrame(node, "summarizer", "v2")
				r1, err := driver.Commit(ctx, v1)
				Expect(err).NotTo(HaveOccurred())
				r2, err := driver.Commit(ctx, v2)
				Expect(err).NotTo(HaveOccurred())

				Expect(r2.Seq).To(BeNumerically(">", r1.Seq))
				Expect(r2.PreviousHead).NotTo(BeNil())
				Expect(*r2.PreviousHead).To(Equal(v1.ID))
				Expect(r2.Root).To(Equal(merkle.FrameSetRoot([]identity.FrameID{v1.ID, v2.ID})))

				head, _, err := driver.GetHead(ctx, node, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(head.FrameID).To(Equal(v2.ID))
			})

			It("treats an identical re-commit as a no-op for storage and the set", func() {
				f := NewFrame(node, "summarizer", "same")
				r1, err := driver.Commit(ctx, f)
				Expect(err).NotTo(HaveOccurred())
				r2, err := driver.Commit(ctx, NewFrame(node, "summarizer", "same"))
				Expect(err).NotTo(HaveOccurred())

				Expect(r2.FrameID).To(Equal(r1.FrameID))
				Expect(r2.NewFrame).To(BeFalse())
				Expect(r2.Root).To(Equal(r1.Root))

				stats, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Frames).To(Equal(int64(1)))
				Expect(stats.Members).To(Equal(int64(1)))
			})

			It("keeps heads of different agents independent", func() {
				a := NewFrame(node, "summarizer", "a")
				b := NewFrame(node, "reviewer", "b")
				_, err := driver.Commit(ctx, a)
				Expect(err).NotTo(HaveOccurred())
				_, err = driver.Commit(ctx, b)
				Expect(err).NotTo(HaveOccurred())

				heads, err := driver.HeadsForNode(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(heads).To(HaveLen(2))
				Expect(heads[0].AgentID).To(Equal("reviewer"))
				Expect(heads[1].AgentID).To(Equal("summarizer"))
			})

			It("stays consistent under concurrent commits", func() {
				const n = 16
				results := make([]*storage.CommitResult, n)
				ids := make([]identity.FrameID, n)
				var wg sync.WaitGroup
				for i := range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						f := NewFrame(node, "summarizer", fmt.Sprintf("content-%d", i))
						ids[i] = f.ID
						var err error
						results[i], err = driver.Commit(ctx, f)
						Expect(err).NotTo(HaveOccurred())
					}()
				}
				wg.Wait()

				latest := results[0]
				for _, r := range results[1:] {
					if r.Seq > latest.Seq {
						latest = r
					}
				}
				head, ok, err := driver.GetHead(ctx, node, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(head.FrameID).To(Equal(latest.FrameID))

				root, err := driver.FrameSetRoot(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(root).To(Equal(merkle.FrameSetRoot(ids)))
			})
		})

		Describe("frame sets", func() {
			It("distinguishes unknown nodes from empty sets", func() {
				root, err := driver.FrameSetRoot(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(root).To(Equal(merkle.EmptyFrameSetRoot))

				_, err = driver.FrameSetRoot(ctx, identity.NodeID{3})
				Expect(storage.IsNodeUnknown(err)).To(BeTrue())

				_, err = driver.FrameSetContains(ctx, identity.NodeID{3}, identity.FrameID{})
				Expect(storage.IsNodeUnknown(err)).To(BeTrue())
			})

			It("adds stored frames and leaves the root unchanged on re-add", func() {
				f := NewFrame(node, "summarizer", "loose")
				_, err := driver.PutFrame(ctx, f)
				Expect(err).NotTo(HaveOccurred())

				r1, err := driver.AddToFrameSet(ctx, node, f.ID)
				Expect(err).NotTo(HaveOccurred())
				r2, err := driver.AddToFrameSet(ctx, node, f.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(r2).To(Equal(r1))
				Expect(r1).To(Equal(merkle.FrameSetRoot([]identity.FrameID{f.ID})))

				_, ok, err := driver.GetHead(ctx, node, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})

			It("rebuilds a root from its own node's members only", func() {
				other := PutFileNode(ctx, driver, "src/other.go", "package other")
				mine := NewFrame(node, "summarizer", "mine")
				_, err := driver.Commit(ctx, mine)
				Expect(err).NotTo(HaveOccurred())

				for i := range 3 {
					_, err := driver.Commit(ctx, NewFrame(other, "summarizer", fmt.Sprintf("theirs %d", i)))
					Expect(err).NotTo(HaveOccurred())
				}

				root, err := driver.FrameSetRoot(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(root).To(Equal(merkle.FrameSetRoot([]identity.FrameID{mine.ID})))
			})

			It("refuses frames that are missing or belong elsewhere", func() {
				_, err := driver.AddToFrameSet(ctx, node, identity.FrameID{5})
				Expect(storage.IsNotFound(err)).To(BeTrue())

				other := PutFileNode(ctx, driver, "other.go", "package other")
				f := NewFrame(other, "summarizer", "x")
				_, err = driver.PutFrame(ctx, f)
				Expect(err).NotTo(HaveOccurred())
				_, err = driver.AddToFrameSet(ctx, node, f.ID)
				Expect(storage.IsConflict(err)).To(BeTrue())
			})

			It("lists members newest first within the limit", func() {
				var ids []identity.FrameID
				for i := range 5 {
					agent := "summarizer"
					if i%2 == 1 {
						agent = "reviewer"
					}
					f := NewFrame(node, agent, fmt.Sprintf("m%d", i))
					_, err := driver.Commit(ctx, f)
					Expect(err).NotTo(HaveOccurred())
					ids = append(ids, f.ID)
				}

				members, err := driver.FrameSetMembers(ctx, node, storage.MemberQuery{Limit: 3})
				Expect(err).NotTo(HaveOccurred())
				Expect(members).To(HaveLen(3))
				Expect(members[0].FrameID).To(Equal(ids[4]))
				Expect(members[1].FrameID).To(Equal(ids[3]))
				Expect(members[2].FrameID).To(Equal(ids[2]))

				only, err := driver.FrameSetMembers(ctx, node, storage.MemberQuery{IncludeAgents: []string{"reviewer"}, Limit: 10})
				Expect(err).NotTo(HaveOccurred())
				Expect(only).To(HaveLen(2))

				excluded, err := driver.FrameSetMembers(ctx, node, storage.MemberQuery{ExcludeAgents: []string{"reviewer"}, Limit: 10})
				Expect(err).NotTo(HaveOccurred())
				Expect(excluded).To(HaveLen(3))
				for _, m := range excluded {
					Expect(m.AgentID).To(Equal("summarizer"))
				}
			})

			It("refuses unbounded listings", func() {
				_, err := driver.FrameSetMembers(ctx, node, storage.MemberQuery{})
				Expect(err).To(HaveOccurred())
			})
		})

		Describe("heads", func() {
			It("only points heads at members of the set", func() {
				f := NewFrame(node, "summarizer", "loose")
				_, err := driver.PutFrame(ctx, f)
				Expect(err).NotTo(HaveOccurred())

				_, err = driver.UpdateHead(ctx, node, "summarizer", f.ID)
				Expect(storage.IsConflict(err)).To(BeTrue())

				_, err = driver.AddToFrameSet(ctx, node, f.ID)
				Expect(err).NotTo(HaveOccurred())
				h, err := driver.UpdateHead(ctx, node, "summarizer", f.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(h.FrameID).To(Equal(f.ID))
			})

			It("rewinds a head to an older member with a newer sequence", func() {
				v1 := NewFrame(node, "summarizer", "v1")
				v2 := NewFrame(node, "summarizer", "v2")
				_, err := driver.Commit(ctx, v1)
				Expect(err).NotTo(HaveOccurred())
				r2, err := driver.Commit(ctx, v2)
				Expect(err).NotTo(HaveOccurred())

				h, err := driver.UpdateHead(ctx, node, "summarizer", v1.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(h.Seq).To(BeNumerically(">", r2.Seq))
			})

			It("reports unknown nodes", func() {
				_, err := driver.HeadsForNode(ctx, identity.NodeID{4})
				Expect(storage.IsNodeUnknown(err)).To(BeTrue())

				_, ok, err := driver.GetHead(ctx, identity.NodeID{4}, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})
		})

		Describe("legacy heads", func() {
			It("restores heads verbatim and keeps later sequences ahead", func() {
				legacy, ok := driver.(storage.LegacyHeadStore)
				if !ok {
					Skip(name + " does not hold legacy heads")
				}

				f := NewFrame(node, "summarizer", "old")
				_, err := driver.PutFrame(ctx, f)
				Expect(err).NotTo(HaveOccurred())

				restored := storage.Head{NodeID: node, AgentID: "summarizer", FrameID: f.ID, Seq: 500}
				Expect(legacy.RestoreHead(ctx, restored)).To(Succeed())

				h, ok, err := driver.GetHead(ctx, node, "summarizer")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(h.Seq).To(Equal(uint64(500)))

				in, err := driver.FrameSetContains(ctx, node, f.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(in).To(BeTrue())

				res, err := driver.Commit(ctx, NewFrame(node, "summarizer", "new"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Seq).To(BeNumerically(">", 500))
			})
		})
	})
}
