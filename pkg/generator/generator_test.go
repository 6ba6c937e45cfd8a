package generator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ = Describe("IsTransient", func() {
	It("recognizes wrapped transient errors", func() {
		err := fmt.Errorf("attempt 1: %w", generator.Transient(errors.New("429")))
		Expect(generator.IsTransient(err)).To(BeTrue())
	})

	It("recognizes network timeouts", func() {
		Expect(generator.IsTransient(timeoutErr{})).To(BeTrue())
	})

	It("treats other errors as permanent", func() {
		Expect(generator.IsTransient(errors.New("bad request"))).To(BeFalse())
		Expect(generator.Transient(nil)).To(BeNil())
	})

	DescribeTable("classifies status codes",
		func(code int, transient bool) {
			Expect(generator.TransientStatus(code)).To(Equal(transient))
		},
		Entry("rate limited", 429, true),
		Entry("overloaded", 529, true),
		Entry("bad gateway", 502, true),
		Entry("bad request", 400, false),
		Entry("unauthorized", 401, false),
	)
})

var _ = Describe("Render", func() {
	It("includes file content and marks truncation", func() {
		out := generator.Render(generator.NodeContext{Path: "a.go", Kind: merkle.KindFile, Content: []byte("package a"), Truncated: true})
		Expect(out).To(ContainSubstring("Path: a.go"))
		Expect(out).To(ContainSubstring("package a\n```"))
		Expect(out).To(ContainSubstring("(content truncated)"))
	})

	It("lists directory entries", func() {
		out := generator.Render(generator.NodeContext{Path: "pkg", Kind: merkle.KindDirectory, Children: []string{"pkg/a.go", "pkg/b.go"}})
		Expect(out).To(ContainSubstring("- pkg/a.go\n- pkg/b.go\n"))
	})

	It("falls back to the default instruction", func() {
		Expect(generator.Instruction(agent.Agent{ID: "x"})).To(Equal(generator.DefaultInstruction))
		Expect(generator.Instruction(agent.Agent{ID: "x", Prompt: "Review it"})).To(Equal("Review it"))
	})
})

var _ = Describe("FSCollector", func() {
	var (
		ctx    context.Context
		root   string
		driver *inmemory.Driver
		result *merkle.IngestResult
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(root, "pkg"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg\n"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "README.md"), []byte(strings.Repeat("x", 100)), 0o644)).To(Succeed())

		driver = inmemory.NewDriver()
		var err error
		result, err = merkle.Ingest(ctx, root, driver, merkle.IngestOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("reads file content", func() {
		c := &generator.FSCollector{Nodes: driver, Root: root}
		nc, err := c.Collect(ctx, result.Paths["pkg/a.go"], "")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(nc.Content)).To(Equal("package pkg\n"))
		Expect(nc.Truncated).To(BeFalse())
	})

	It("truncates large files", func() {
		c := &generator.FSCollector{Nodes: driver, Root: root, MaxBytes: 10}
		nc, err := c.Collect(ctx, result.Paths["README.md"], "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nc.Content).To(HaveLen(10))
		Expect(nc.Truncated).To(BeTrue())
	})

	It("lists directory children", func() {
		c := &generator.FSCollector{Nodes: driver, Root: root}
		nc, err := c.Collect(ctx, result.Root, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nc.Kind).To(Equal(merkle.KindDirectory))
		Expect(nc.Children).To(Equal([]string{"README.md", "pkg"}))
	})

	It("detects files changed since ingest", func() {
		Expect(os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package changed\n"), 0o644)).To(Succeed())

		c := &generator.FSCollector{Nodes: driver, Root: root}
		_, err := c.Collect(ctx, result.Paths["pkg/a.go"], "")
		var stale generator.StaleNodeError
		Expect(errors.As(err, &stale)).To(BeTrue())
		Expect(stale.Path).To(Equal("pkg/a.go"))
	})

	It("uses the source override", func() {
		Expect(os.WriteFile(filepath.Join(root, "notes.txt"), []byte("notes"), 0o644)).To(Succeed())
		c := &generator.FSCollector{Nodes: driver, Root: root}
		nc, err := c.Collect(ctx, result.Paths["pkg/a.go"], "notes.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(nc.Content)).To(Equal("notes"))
	})

	It("fails for unknown nodes", func() {
		c := &generator.FSCollector{Nodes: driver, Root: root}
		_, err := c.Collect(ctx, identity.NodeID{1}, "")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})
})
