package metadata_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/metadata"
)

var _ = Describe("Validator", func() {
	var v *metadata.Validator
	digest := identity.HashContent([]byte("prompt text")).String()

	BeforeEach(func() {
		v = metadata.New(metadata.Config{})
	})

	It("returns nil for empty metadata", func() {
		out, err := v.Validate(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeNil())
	})

	It("normalizes keys and values", func() {
		out, err := v.Validate(map[string]string{
			" Prompt_Digest ": " " + digest + " ",
			"model":           "claude-sonnet",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(map[string]string{
			"prompt_digest": digest,
			"model":         "claude-sonnet",
		}))
	})

	It("accepts derived references for forbidden payload names", func() {
		_, err := v.Validate(map[string]string{
			"prompt_digest": digest,
			"response_id":   "msg_01ABC",
			"content_url":   "https://example.com/frames/1",
			"generated_at":  "2025-06-01T12:00:00Z",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("rejects metadata",
		func(md map[string]string, reason string) {
			_, err := v.Validate(md)
			Expect(err).To(HaveOccurred())
			Expect(metadata.IsPolicyError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(reason))
		},
		Entry("raw prompt", map[string]string{"prompt": "Summarize this file"}, "raw payloads"),
		Entry("raw prompt variant", map[string]string{"prompt_text": "Summarize"}, "raw payloads"),
		Entry("bad key", map[string]string{"9lives": "x"}, "key must match"),
		Entry("non-hex digest", map[string]string{"source_digest": "not-hex!"}, "hexadecimal"),
		Entry("short digest", map[string]string{"source_digest": "abc123"}, "len"),
		Entry("bad timestamp", map[string]string{"reviewed_at": "yesterday"}, "datetime"),
		Entry("bad url", map[string]string{"issue_url": "not a url"}, "url"),
		Entry("non-ascii id", map[string]string{"run_id": "ünïcode"}, "printascii"),
		Entry("empty value", map[string]string{"model": " "}, "empty value"),
		Entry("multi-line value", map[string]string{"model": "a\nb"}, "multi-line"),
		Entry("duplicate after normalization", map[string]string{"Model": "a", "model": "b"}, "duplicate"),
		Entry("oversized value", map[string]string{"model": strings.Repeat("x", metadata.DefaultMaxValueBytes+1)}, "exceeds"),
	)

	It("bounds the number of keys", func() {
		v = metadata.New(metadata.Config{MaxKeys: 2})
		md := map[string]string{}
		for i := range 3 {
			md[fmt.Sprintf("k%d", i)] = "v"
		}
		_, err := v.Validate(md)
		Expect(err).To(MatchError(ContainSubstring("3 keys exceeds the limit of 2")))
	})

	Context("strict", func() {
		BeforeEach(func() {
			v = metadata.New(metadata.Config{Strict: true, Allowed: []string{"model"}})
		})

		It("accepts reference keys and allowed keys", func() {
			_, err := v.Validate(map[string]string{"model": "gpt", "source_digest": digest})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects other keys", func() {
			_, err := v.Validate(map[string]string{"note": "free text"})
			Expect(err).To(MatchError(ContainSubstring("strict policy")))
		})
	})

	It("honors a custom forbidden list", func() {
		v = metadata.New(metadata.Config{Forbidden: []string{"secret"}})
		_, err := v.Validate(map[string]string{"prompt": "now allowed"})
		Expect(err).NotTo(HaveOccurred())
		_, err = v.Validate(map[string]string{"secret": "nope"})
		Expect(metadata.IsPolicyError(err)).To(BeTrue())
	})
})
