package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/generator/openai"
	"github.com/papercomputeco/frames/pkg/merkle"
)

var _ = Describe("Generator", func() {
	var (
		status int
		body   string
		seen   map[string]any
		server *httptest.Server
		gen    *openai.Generator
		nc     generator.NodeContext
	)

	BeforeEach(func() {
		status = http.StatusOK
		body = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  A README.  "},"finish_reason":"stop"}]}`
		seen = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &seen)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}))
		DeferCleanup(server.Close)

		gen = openai.New(func(o *openai.Options) {
			o.APIKey = "test-key"
			o.BaseURL = server.URL + "/v1/"
		})
		nc = generator.NodeContext{Path: "README.md", Kind: merkle.KindFile, Content: []byte("# hi\n")}
	})

	It("returns the trimmed message content", func() {
		out, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("A README."))
		Expect(seen["model"]).To(Equal(openai.DefaultModel))
		Expect(seen["messages"]).To(HaveLen(2))
	})

	It("marks server errors transient", func() {
		status = http.StatusServiceUnavailable
		body = `{"error":{"message":"overloaded","type":"server_error"}}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(generator.IsTransient(err)).To(BeTrue())
	})

	It("treats auth failures as permanent", func() {
		status = http.StatusUnauthorized
		body = `{"error":{"message":"bad key","type":"invalid_request_error"}}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).To(HaveOccurred())
		Expect(generator.IsTransient(err)).To(BeFalse())
	})

	It("rejects responses without choices", func() {
		body = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[]}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).To(MatchError(generator.ErrEmptyContent))
	})
})
