package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/git"
)

var _ = Describe("repository detection", func() {
	var repo string

	BeforeEach(func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git is not installed")
		}

		var err error
		repo, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		cmd := exec.Command("git", "init", "-q", repo)
		Expect(cmd.Run()).To(Succeed())
	})

	It("finds the repository root from a subdirectory", func() {
		sub := filepath.Join(repo, "a", "b")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())

		Expect(git.RepoRoot(context.Background(), sub)).To(Equal(repo))
	})

	It("returns empty outside a repository", func() {
		outside, err := filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		Expect(git.RepoRoot(context.Background(), outside)).To(BeEmpty())
	})

	It("names and ingests the repository of the working directory", func() {
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(repo)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })

		Expect(git.RepoName()).To(Equal(filepath.Base(repo)))

		root, err := git.IngestRoot(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(root).To(Equal(repo))
	})
})
