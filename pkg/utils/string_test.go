package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/utils"
)

var _ = Describe("Truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(utils.Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(utils.Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		Expect(utils.Truncate("this is a long string", 10)).To(Equal("this is a ..."))
	})

	It("never splits a multi-byte rune", func() {
		Expect(utils.Truncate("héllo wörld", 2)).To(Equal("hé..."))
	})
})

var _ = Describe("ShortID", func() {
	It("keeps short identifiers", func() {
		Expect(utils.ShortID("abc")).To(Equal("abc"))
	})

	It("cuts long identifiers to twelve characters", func() {
		Expect(utils.ShortID("0123456789abcdef")).To(Equal("0123456789ab"))
	})
})
