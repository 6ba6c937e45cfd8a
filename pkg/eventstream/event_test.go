package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/identity"
)

var _ = Describe("Event", func() {
	It("marshals FrameCommittedEvent with expected top-level keys", func() {
		node := identity.ComputeNodeID("a.go", []byte("package a"), nil)
		frameID := identity.ComputeFrameID(node, "summarizer", []byte("summary"))
		prev := identity.ComputeFrameID(node, "summarizer", []byte("old"))

		event := eventstream.NewFrameCommittedEvent(
			eventstream.EventSource{AgentID: "summarizer", Origin: eventstream.OriginGeneration, RequestID: "req-1"},
			eventstream.CommitMeta{NodeID: node, FrameID: frameID, Seq: 9, PreviousHead: &prev, NewFrame: true, ContentBytes: 7},
		)

		raw, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKey("schema_version"))
		Expect(decoded).To(HaveKeyWithValue("event_type", eventstream.EventTypeFrameCommitted))
		Expect(decoded["event_id"]).NotTo(BeEmpty())

		commit, ok := decoded["commit"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(commit).To(HaveKeyWithValue("node_id", node.String()))
		Expect(commit).To(HaveKeyWithValue("frame_id", frameID.String()))
		Expect(commit).To(HaveKeyWithValue("previous_head", prev.String()))

		source, ok := decoded["source"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(source).To(HaveKeyWithValue("origin", "generation"))
	})

	It("assigns distinct event IDs", func() {
		a := eventstream.NewFrameCommittedEvent(eventstream.EventSource{}, eventstream.CommitMeta{})
		b := eventstream.NewFrameCommittedEvent(eventstream.EventSource{}, eventstream.CommitMeta{})
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})
})
