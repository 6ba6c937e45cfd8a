package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilFrameEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishFrame(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilFrameEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishFrame(context.Background(), &eventstream.FrameCommittedEvent{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})
})
