package badger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	badgerdriver "github.com/papercomputeco/frames/pkg/storage/badger"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
)

var _ storage.Driver = (*badgerdriver.Driver)(nil)
var _ storage.LegacyHeadStore = (*badgerdriver.Driver)(nil)

var _ = storagetest.DescribeDriver("badger",
	func() storage.Driver {
		driver, err := badgerdriver.NewDriver(badgerdriver.InMemoryConfig())
		Expect(err).NotTo(HaveOccurred())
		return driver
	},
	storagetest.Corruption{
		Content: func(d storage.Driver, id identity.FrameID, content []byte) {
			rewriteFrame(d, id, func(val []byte) []byte {
				var f frame.Frame
				Expect(json.Unmarshal(val, &f)).To(Succeed())
				f.Content = content
				b, err := json.Marshal(&f)
				Expect(err).NotTo(HaveOccurred())
				return b
			})
		},
		Bytes: func(d storage.Driver, id identity.FrameID) {
			rewriteFrame(d, id, func(val []byte) []byte {
				at := bytes.Index(val, []byte(`"content":"`))
				Expect(at).To(BeNumerically(">=", 0))
				damaged := bytes.Clone(val)
				damaged[at+len(`"content":"`)] = '!'
				return damaged
			})
		},
	},
)

// rewriteFrame replaces the raw value stored under a frame's key.
func rewriteFrame(d storage.Driver, id identity.FrameID, edit func(val []byte) []byte) {
	drv := d.(*badgerdriver.Driver)
	k := append([]byte("f:"), id[:]...)
	Expect(drv.DB().Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Set(k, edit(val))
	})).To(Succeed())
}

var _ = Describe("Driver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("persists heads and the sequence across reopen", func() {
		dir := GinkgoT().TempDir()
		cfg := badgerdriver.DefaultConfig(dir)
		cfg.GCInterval = 0

		first, err := badgerdriver.NewDriver(cfg)
		Expect(err).NotTo(HaveOccurred())
		node := storagetest.PutFileNode(ctx, first, "a.txt", "a")
		res, err := first.Commit(ctx, storagetest.NewFrame(node, "summarizer", "v1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close()).To(Succeed())

		second, err := badgerdriver.NewDriver(cfg)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()

		head, ok, err := second.GetHead(ctx, node, "summarizer")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(head.FrameID).To(Equal(res.FrameID))

		next, err := second.Commit(ctx, storagetest.NewFrame(node, "summarizer", "v2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Seq).To(Equal(res.Seq + 1))
	})

	It("reads, and drops, heads under the retired key scheme", func() {
		driver, err := badgerdriver.NewDriver(badgerdriver.InMemoryConfig())
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		node := storagetest.PutFileNode(ctx, driver, "a.txt", "a")
		Expect(driver.SeedLegacyHead(ctx, storage.LegacyHead{
			NodeID: node, AgentID: "summarizer", FrameType: "summary",
			FrameID: identity.FrameID{2}, Seq: 9, UpdatedAt: time.Unix(20, 0).UTC(),
		})).To(Succeed())
		Expect(driver.SeedLegacyHead(ctx, storage.LegacyHead{
			NodeID: node, AgentID: "summarizer", FrameType: "outline",
			FrameID: identity.FrameID{3}, Seq: 4,
		})).To(Succeed())

		heads, err := driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(HaveLen(2))
		types := []string{heads[0].FrameType, heads[1].FrameType}
		Expect(types).To(ConsistOf("summary", "outline"))
		for _, h := range heads {
			Expect(h.NodeID).To(Equal(node))
			Expect(h.AgentID).To(Equal("summarizer"))
		}

		Expect(driver.DropLegacyHeads(ctx)).To(Succeed())
		heads, err = driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(BeEmpty())
	})

	It("requires a path for persistent stores", func() {
		_, err := badgerdriver.NewDriver(badgerdriver.Config{})
		Expect(err).To(HaveOccurred())
	})
})
