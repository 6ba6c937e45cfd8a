package agent_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/agent"
)

var _ = Describe("Registry", func() {
	It("accepts registered agents", func() {
		r, err := agent.NewRegistry(
			agent.Agent{ID: "summarizer", Description: "file summaries"},
			agent.Agent{ID: "reviewer"},
		)
		Expect(err).NotTo(HaveOccurred())

		a, err := r.Lookup("summarizer")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Description).To(Equal("file summaries"))
		Expect(r.IDs()).To(Equal([]string{"reviewer", "summarizer"}))
	})

	It("rejects unknown agents", func() {
		r, err := agent.NewRegistry(agent.Agent{ID: "summarizer"})
		Expect(err).NotTo(HaveOccurred())

		err = r.Check("summariser")
		var unknown agent.UnknownAgentError
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(unknown.ID).To(Equal("summariser"))
	})

	DescribeTable("rejects malformed registrations",
		func(id string) {
			_, err := agent.NewRegistry(agent.Agent{ID: id})
			var invalid agent.InvalidAgentError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		},
		Entry("empty", ""),
		Entry("upper case", "Summarizer"),
		Entry("spaces", "file summary"),
	)

	It("rejects duplicate registrations", func() {
		_, err := agent.NewRegistry(agent.Agent{ID: "a"}, agent.Agent{ID: "a"})
		Expect(err).To(MatchError(ContainSubstring("already registered")))
	})

	It("accepts any well-formed ID when open", func() {
		r := agent.Open()
		Expect(r.Check("anything")).To(Succeed())
		Expect(r.Check("Not Valid")).To(HaveOccurred())
	})
})
