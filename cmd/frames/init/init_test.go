package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/frames/cmd/frames/init"
	"github.com/papercomputeco/frames/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		f := initcmder.NewInitCmd().Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })
	})

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	It("creates the .frames directory", func() {
		out, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Initialized .frames directory"))

		info, err := os.Stat(filepath.Join(tmpDir, ".frames"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("is idempotent", func() {
		_, err := run()
		Expect(err).NotTo(HaveOccurred())

		out, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Already initialized"))
	})

	It("writes the preset config", func() {
		_, err := run("--preset", "anthropic")
		Expect(err).NotTo(HaveOccurred())

		c, err := config.NewConfiger(filepath.Join(tmpDir, ".frames"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := c.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Generator.Provider).To(Equal("anthropic"))
	})

	It("rejects unknown presets", func() {
		_, err := run("--preset", "bard")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})
