package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
)

var _ storage.Driver = (*inmemory.Driver)(nil)
var _ storage.LegacyHeadStore = (*inmemory.Driver)(nil)

var _ = storagetest.DescribeDriver("inmemory",
	func() storage.Driver { return inmemory.NewDriver() },
	storagetest.Corruption{
		Content: func(d storage.Driver, id identity.FrameID, content []byte) {
			drv := d.(*inmemory.Driver)
			f, err := drv.GetFrame(context.Background(), id)
			Expect(err).NotTo(HaveOccurred())
			f.Content = content
			drv.Overwrite(f)
		},
	},
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
	})

	It("returns copies so callers cannot mutate stored frames", func() {
		node := storagetest.PutFileNode(ctx, driver, "a.txt", "a")
		f := storagetest.NewFrame(node, "summarizer", "content")
		_, err := driver.Commit(ctx, f)
		Expect(err).NotTo(HaveOccurred())

		f.Content[0] = 'X'
		got, err := driver.GetFrame(ctx, f.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got.Content)).To(Equal("content"))

		got.Content[0] = 'Y'
		again, err := driver.GetFrame(ctx, f.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(again.Content)).To(Equal("content"))
	})

	It("keeps legacy heads until dropped", func() {
		driver.SeedLegacyHead(storage.LegacyHead{AgentID: "summarizer", FrameType: "summary"})
		heads, err := driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(HaveLen(1))

		Expect(driver.DropLegacyHeads(ctx)).To(Succeed())
		heads, err = driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(BeEmpty())
	})
})
