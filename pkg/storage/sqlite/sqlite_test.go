package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/sqlite"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
)

var _ storage.Driver = (*sqlite.SQLiteDriver)(nil)
var _ storage.LegacyHeadStore = (*sqlite.SQLiteDriver)(nil)

func openTemp() *sqlite.SQLiteDriver {
	driver, err := sqlite.NewSQLiteDriver(context.Background(), filepath.Join(GinkgoT().TempDir(), "frames.db"))
	Expect(err).NotTo(HaveOccurred())
	return driver
}

var _ = storagetest.DescribeDriver("sqlite",
	func() storage.Driver { return openTemp() },
	storagetest.Corruption{
		Content: func(d storage.Driver, id identity.FrameID, content []byte) {
			drv := d.(*sqlite.SQLiteDriver)
			_, err := drv.DB().Exec(`UPDATE frames SET content = ? WHERE id = ?`, content, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
		Bytes: func(d storage.Driver, id identity.FrameID) {
			drv := d.(*sqlite.SQLiteDriver)
			_, err := drv.DB().Exec(`UPDATE frames SET fields = 'nul' WHERE id = ?`, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
	},
)

var _ = Describe("SQLiteDriver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates the database file", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")
		s, err := sqlite.NewSQLiteDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("persists heads and sequences across reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "reopen.db")
		first, err := sqlite.NewSQLiteDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())

		node := storagetest.PutFileNode(ctx, first, "a.txt", "a")
		res, err := first.Commit(ctx, storagetest.NewFrame(node, "summarizer", "v1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close()).To(Succeed())

		second, err := sqlite.NewSQLiteDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()

		head, ok, err := second.GetHead(ctx, node, "summarizer")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(head.FrameID).To(Equal(res.FrameID))

		next, err := second.Commit(ctx, storagetest.NewFrame(node, "summarizer", "v2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Seq).To(BeNumerically(">", res.Seq))
	})

	It("reads and drops rows of the retired head table", func() {
		driver := openTemp()
		defer driver.Close()

		node := storagetest.PutFileNode(ctx, driver, "a.txt", "a")
		Expect(driver.SeedLegacyHead(ctx, storage.LegacyHead{
			NodeID: node, AgentID: "summarizer", FrameType: "summary",
			FrameID: identity.FrameID{1}, Seq: 3, UpdatedAt: time.Unix(10, 0),
		})).To(Succeed())

		heads, err := driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(HaveLen(1))
		Expect(heads[0].FrameType).To(Equal("summary"))
		Expect(heads[0].UpdatedAt.Equal(time.Unix(10, 0))).To(BeTrue())

		Expect(driver.DropLegacyHeads(ctx)).To(Succeed())
		heads, err = driver.LegacyHeads(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(heads).To(BeEmpty())
	})
})
