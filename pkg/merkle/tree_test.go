package merkle_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
)

var _ = Describe("Tree", func() {
	var (
		ctx  context.Context
		tree *merkle.Tree
		res  *merkle.IngestResult
	)

	BeforeEach(func() {
		ctx = context.Background()
		root := GinkgoT().TempDir()
		writeTree(root, map[string]string{
			"a.txt":     "a",
			"d/b.txt":   "b",
			"d/e/c.txt": "c",
		})

		driver := inmemory.NewDriver()
		var err error
		res, err = merkle.Ingest(ctx, root, driver, merkle.IngestOptions{})
		Expect(err).NotTo(HaveOccurred())
		tree, err = merkle.LoadTree(ctx, driver, res.Root)
		Expect(err).NotTo(HaveOccurred())
	})

	It("loads every node", func() {
		Expect(tree.Size()).To(Equal(6))
		Expect(tree.Root.ID).To(Equal(res.Root))
		Expect(tree.Lookup("./d/e/c.txt").ID).To(Equal(res.Paths["d/e/c.txt"]))
	})

	It("walks depth first in canonical order", func() {
		var paths []string
		Expect(tree.Walk(func(n *merkle.TreeNode) (bool, error) {
			paths = append(paths, n.Path)
			return true, nil
		})).To(Succeed())
		Expect(paths).To(Equal([]string{".", "a.txt", "d", "d/b.txt", "d/e", "d/e/c.txt"}))
	})

	It("stops walking when told to", func() {
		count := 0
		Expect(tree.Walk(func(*merkle.TreeNode) (bool, error) {
			count++
			return count < 2, nil
		})).To(Succeed())
		Expect(count).To(Equal(2))
	})

	It("returns ancestors node first", func() {
		anc := tree.Ancestors(res.Paths["d/e/c.txt"])
		Expect(anc).To(HaveLen(4))
		Expect(anc[0].Path).To(Equal("d/e/c.txt"))
		Expect(anc[3].Path).To(Equal("."))
	})

	It("returns only the descendants of the given node", func() {
		desc := tree.Descendants(res.Paths["d/e"])
		Expect(desc).To(HaveLen(1))
		Expect(desc[0].Path).To(Equal("d/e/c.txt"))
		Expect(tree.Descendants(identity.NodeID{})).To(BeNil())
	})

	It("lists leaves", func() {
		Expect(tree.Leaves()).To(HaveLen(3))
	})
})
