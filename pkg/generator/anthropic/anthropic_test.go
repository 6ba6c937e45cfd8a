package anthropic_test

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
	"github.com/papercomputeco/frames/pkg/generator/anthropic"
	"github.com/papercomputeco/frames/pkg/merkle"
)

var _ = Describe("Generator", func() {
	var (
		status int
		body   string
		seen   map[string]any
		server *httptest.Server
		gen    *anthropic.Generator
		nc     generator.NodeContext
	)

	BeforeEach(func() {
		status = http.StatusOK
		body = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"A tiny Go package."}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`
		seen = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &seen)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}))
		DeferCleanup(server.Close)

		gen = anthropic.New(func(o *anthropic.Options) {
			o.APIKey = "test-key"
			o.BaseURL = server.URL
		})
		nc = generator.NodeContext{Path: "pkg/a.go", Kind: merkle.KindFile, Content: []byte("package pkg\n")}
	})

	It("returns the text content", func() {
		out, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer", Prompt: "Summarize."})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("A tiny Go package."))
		Expect(seen["model"]).To(Equal(anthropic.DefaultModel))
		Expect(seen["system"]).To(ContainElement(HaveKeyWithValue("text", "Summarize.")))
	})

	It("uses the agent's model override", func() {
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer", Model: "claude-haiku-4-5"})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen["model"]).To(Equal("claude-haiku-4-5"))
	})

	It("marks rate limits transient", func() {
		status = http.StatusTooManyRequests
		body = `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).To(HaveOccurred())
		Expect(generator.IsTransient(err)).To(BeTrue())
	})

	It("treats bad requests as permanent", func() {
		status = http.StatusBadRequest
		body = `{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).To(HaveOccurred())
		Expect(generator.IsTransient(err)).To(BeFalse())
	})

	It("rejects empty responses", func() {
		body = `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`
		_, err := gen.Generate(context.Background(), nc, agent.Agent{ID: "summarizer"})
		Expect(err).To(MatchError(generator.ErrEmptyContent))
	})
})
