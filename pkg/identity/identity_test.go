package identity_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
)

var _ = Describe("HashContent", func() {
	It("matches the well known digest of empty content", func() {
		Expect(identity.HashContent(nil).String()).To(Equal(
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
		Expect(identity.HashContent([]byte{})).To(Equal(identity.HashContent(nil)))
	})
})

var _ = Describe("ComputeNodeID", func() {
	It("is deterministic", func() {
		a := identity.ComputeNodeID("src/main.go", []byte("package main"), nil)
		b := identity.ComputeNodeID("src/main.go", []byte("package main"), nil)
		Expect(a).To(Equal(b))
	})

	It("changes when content changes", func() {
		a := identity.ComputeNodeID("a.txt", []byte("one"), nil)
		b := identity.ComputeNodeID("a.txt", []byte("two"), nil)
		Expect(a).NotTo(Equal(b))
	})

	It("changes when path changes", func() {
		a := identity.ComputeNodeID("a.txt", []byte("same"), nil)
		b := identity.ComputeNodeID("b.txt", []byte("same"), nil)
		Expect(a).NotTo(Equal(b))
	})

	It("distinguishes an empty file from a directory", func() {
		file := identity.ComputeNodeID("x", []byte{}, nil)
		dir := identity.ComputeNodeID("x", nil, nil)
		Expect(file).NotTo(Equal(dir))
	})

	It("depends on child order", func() {
		a := identity.ComputeNodeID("a", []byte("a"), nil)
		b := identity.ComputeNodeID("b", []byte("b"), nil)
		ab := identity.ComputeNodeID(".", nil, []identity.NodeID{a, b})
		ba := identity.ComputeNodeID(".", nil, []identity.NodeID{b, a})
		Expect(ab).NotTo(Equal(ba))
	})

	It("treats equivalent path spellings as the same node", func() {
		a := identity.ComputeNodeID("./docs//readme.md", []byte("x"), nil)
		b := identity.ComputeNodeID("docs/readme.md", []byte("x"), nil)
		Expect(a).To(Equal(b))
	})

	It("agrees with the digest form", func() {
		content := []byte("streamed")
		d := identity.HashContent(content)
		Expect(identity.ComputeNodeIDFromDigest("f", &d, nil)).To(Equal(identity.ComputeNodeID("f", content, nil)))
	})
})

var _ = Describe("ComputeFrameID", func() {
	var node identity.NodeID

	BeforeEach(func() {
		node = identity.ComputeNodeID("a.txt", []byte("hello"), nil)
	})

	It("is deterministic", func() {
		Expect(identity.ComputeFrameID(node, "summarizer", []byte("s"))).To(
			Equal(identity.ComputeFrameID(node, "summarizer", []byte("s"))))
	})

	It("varies with agent, content and node", func() {
		base := identity.ComputeFrameID(node, "summarizer", []byte("s"))
		other := identity.ComputeNodeID("b.txt", []byte("hello"), nil)
		Expect(identity.ComputeFrameID(node, "reviewer", []byte("s"))).NotTo(Equal(base))
		Expect(identity.ComputeFrameID(node, "summarizer", []byte("t"))).NotTo(Equal(base))
		Expect(identity.ComputeFrameID(other, "summarizer", []byte("s"))).NotTo(Equal(base))
	})

	It("length-prefixes every component, the owning node included", func() {
		var want bytes.Buffer
		want.WriteString(identity.DomainFrame)
		want.WriteByte(0x00)
		for _, part := range [][]byte{node[:], []byte("summarizer"), []byte("s")} {
			Expect(binary.Write(&want, binary.BigEndian, uint64(len(part)))).To(Succeed())
			want.Write(part)
		}
		Expect(binary.Write(&want, binary.BigEndian, uint64(0))).To(Succeed())

		sum := sha256.Sum256(want.Bytes())
		got := identity.ComputeFrameID(node, "summarizer", []byte("s"))
		Expect(got[:]).To(Equal(sum[:]))
	})

	It("does not confuse agent and content boundaries", func() {
		a := identity.ComputeFrameID(node, "ab", []byte("c"))
		b := identity.ComputeFrameID(node, "a", []byte("bc"))
		Expect(a).NotTo(Equal(b))
	})

	It("folds identity fields into the identifier", func() {
		plain := identity.ComputeFrameID(node, "summarizer", []byte("s"))
		withField := identity.ComputeFrameID(node, "summarizer", []byte("s"),
			identity.Field{Name: "model", Value: []byte("m1")})
		Expect(withField).NotTo(Equal(plain))
	})
})

var _ = Describe("SortFields", func() {
	It("orders by name", func() {
		fields := []identity.Field{{Name: "z"}, {Name: "a"}, {Name: "m"}}
		Expect(identity.SortFields(fields)).To(Succeed())
		Expect(fields[0].Name).To(Equal("a"))
		Expect(fields[2].Name).To(Equal("z"))
	})

	It("rejects duplicate names", func() {
		Expect(identity.SortFields([]identity.Field{{Name: "a"}, {Name: "a"}})).NotTo(Succeed())
	})
})

var _ = Describe("CanonicalPath", func() {
	DescribeTable("normalizes",
		func(in, want string) {
			Expect(identity.CanonicalPath(in)).To(Equal(want))
		},
		Entry("empty", "", "."),
		Entry("root", "/", "."),
		Entry("dot", ".", "."),
		Entry("leading dot slash", "./a/b", "a/b"),
		Entry("duplicate slashes", "a//b/", "a/b"),
		Entry("parent elements", "a/../b", "b"),
		Entry("nfd to nfc", "cafe\u0301.txt", "caf\u00e9.txt"),
	)

	It("joins child names under a parent", func() {
		Expect(identity.JoinPath(".", "a")).To(Equal("a"))
		Expect(identity.JoinPath("a", "b.txt")).To(Equal("a/b.txt"))
	})
})

var _ = Describe("text encoding", func() {
	It("round trips identifiers through JSON", func() {
		id := identity.ComputeFrameID(identity.NodeID{}, "a", nil)
		b, err := json.Marshal(map[string]identity.FrameID{"id": id})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(ContainSubstring(id.String()))

		var out map[string]identity.FrameID
		Expect(json.Unmarshal(b, &out)).To(Succeed())
		Expect(out["id"]).To(Equal(id))
	})

	It("rejects malformed hex", func() {
		_, err := identity.ParseNodeID("xyz")
		Expect(err).To(HaveOccurred())
		_, err = identity.ParseFrameID("zz" + identity.FrameID{}.String()[2:])
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("HashReader", func() {
	It("agrees with HashContent", func() {
		d, err := identity.HashReader(strings.NewReader("streamed bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(identity.HashContent([]byte("streamed bytes"))))
	})
})
