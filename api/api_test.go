package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/frames/api"
	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
	testutils "github.com/papercomputeco/frames/pkg/utils/test"
	"github.com/papercomputeco/frames/pkg/view"
)

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		store  *contextstore.Store
		gen    *testutils.MockGenerator
		queue  *generation.Queue
		server *api.Server
		node   identity.NodeID
	)

	do := func(method, path string, body any) (*http.Response, []byte) {
		var r io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			r = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, r)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.App().Test(req, 10_000)
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	decode := func(data []byte, v any) {
		Expect(json.Unmarshal(data, v)).To(Succeed(), string(data))
	}

	write := func(agentID, content string) identity.FrameID {
		res, err := store.Write(ctx, contextstore.WriteRequest{NodeID: node, AgentID: agentID, Content: []byte(content)})
		Expect(err).NotTo(HaveOccurred())
		return res.Frame.ID
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		agents, err := agent.NewRegistry(agent.Agent{ID: "summarizer"}, agent.Agent{ID: "reviewer"})
		Expect(err).NotTo(HaveOccurred())
		store, err = contextstore.New(contextstore.Config{Driver: driver, Agents: agents})
		Expect(err).NotTo(HaveOccurred())
		node = storagetest.PutFileNode(ctx, driver, "main.go", "package main")

		gen = testutils.NewMockGenerator()
		reg := prometheus.NewRegistry()
		queue, err = generation.New(generation.Config{
			Store:          store,
			Generator:      gen,
			Collector:      &testutils.MockCollector{},
			InitialBackoff: time.Millisecond,
			Registerer:     reg,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(queue.Close(context.Background())).To(Succeed())
		})

		server, err = api.NewServer(api.Config{ListenAddr: ":0", Gatherer: reg}, store, queue, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a store", func() {
		_, err := api.NewServer(api.Config{}, nil, nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp, body := do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("heads", func() {
		It("returns a head", func() {
			id := write("summarizer", "entry")

			resp, body := do(http.MethodGet, "/v1/nodes/"+node.String()+"/heads/summarizer", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var head storage.Head
			decode(body, &head)
			Expect(head.FrameID).To(Equal(id))
		})

		It("returns 404 when the agent has no head", func() {
			resp, _ := do(http.MethodGet, "/v1/nodes/"+node.String()+"/heads/reviewer", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns 422 for unknown agents", func() {
			resp, body := do(http.MethodGet, "/v1/nodes/"+node.String()+"/heads/ghost", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			var e api.ErrorResponse
			decode(body, &e)
			Expect(e.Kind).To(Equal(contextstore.KindPolicyViolation))
		})

		It("returns 400 for malformed node ids", func() {
			resp, _ := do(http.MethodGet, "/v1/nodes/not-hex/heads", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("lists every head of a node", func() {
			write("summarizer", "a")
			write("reviewer", "b")

			resp, body := do(http.MethodGet, "/v1/nodes/"+node.String()+"/heads", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var out struct {
				Count int            `json:"count"`
				Heads []storage.Head `json:"heads"`
			}
			decode(body, &out)
			Expect(out.Count).To(Equal(2))
			Expect(out.Heads[0].AgentID).To(Equal("reviewer"))
		})

		It("returns 404 for unknown nodes", func() {
			resp, body := do(http.MethodGet, "/v1/nodes/"+identity.NodeID{7}.String()+"/heads", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			var e api.ErrorResponse
			decode(body, &e)
			Expect(e.Kind).To(Equal(contextstore.KindNotFound))
		})
	})

	Describe("nodes", func() {
		It("returns the record with its frame set root", func() {
			write("summarizer", "a")
			resp, body := do(http.MethodGet, "/v1/nodes/"+node.String(), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.NodeResponse
			decode(body, &out)
			Expect(out.Node.Path).To(Equal("main.go"))
			root, err := store.FrameSetRoot(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.FrameSetRoot).To(Equal(root))
		})
	})

	Describe("frames", func() {
		It("writes a frame directly", func() {
			resp, body := do(http.MethodPost, "/v1/nodes/"+node.String()+"/frames", api.WriteFrameRequest{
				AgentID:  "summarizer",
				Content:  "hand written",
				Metadata: map[string]string{"model": "human"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(body))

			var out api.WriteFrameResponse
			decode(body, &out)
			head, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(head.FrameID).To(Equal(out.FrameID))
		})

		It("validates the write body", func() {
			resp, _ := do(http.MethodPost, "/v1/nodes/"+node.String()+"/frames", api.WriteFrameRequest{AgentID: "summarizer"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects metadata that violates policy", func() {
			resp, body := do(http.MethodPost, "/v1/nodes/"+node.String()+"/frames", api.WriteFrameRequest{
				AgentID:  "summarizer",
				Content:  "x",
				Metadata: map[string]string{"content": "smuggled"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity), string(body))
		})

		It("gets a stored frame", func() {
			id := write("summarizer", "entry")
			resp, body := do(http.MethodGet, "/v1/frames/"+id.String(), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var out struct {
				ID      identity.FrameID `json:"id"`
				Content []byte           `json:"content"`
			}
			decode(body, &out)
			Expect(out.ID).To(Equal(id))
			Expect(string(out.Content)).To(Equal("entry"))
		})

		It("returns 500 with the integrity kind for a corrupted frame", func() {
			id := write("summarizer", "entry")
			f, err := driver.GetFrame(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			f.Content = []byte("tampered")
			driver.Overwrite(f)

			resp, body := do(http.MethodGet, "/v1/frames/"+id.String(), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			var e api.ErrorResponse
			decode(body, &e)
			Expect(e.Kind).To(Equal(contextstore.KindIntegrityViolation))
		})
	})

	Describe("view", func() {
		It("selects frames with the default policy", func() {
			write("summarizer", "a")
			write("reviewer", "b")

			resp, body := do(http.MethodPost, "/v1/nodes/"+node.String()+"/view", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var out struct {
				Count  int          `json:"count"`
				Frames []view.Entry `json:"frames"`
			}
			decode(body, &out)
			Expect(out.Count).To(Equal(2))
		})

		It("rejects an invalid policy", func() {
			resp, _ := do(http.MethodPost, "/v1/nodes/"+node.String()+"/view", view.Policy{MaxFrames: view.MaxFramesLimit + 1})
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	Describe("generations", func() {
		It("generates synchronously", func() {
			resp, body := do(http.MethodPost, "/v1/generations", api.GenerationRequest{
				NodeID:  node.String(),
				AgentID: "summarizer",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(body))

			var out struct {
				Handle  string `json:"handle"`
				Outcome struct {
					State   string           `json:"state"`
					FrameID identity.FrameID `json:"frame_id"`
				} `json:"outcome"`
			}
			decode(body, &out)
			Expect(out.Outcome.State).To(Equal("completed"))

			head, ok, err := store.GetHead(ctx, node, "summarizer")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(head.FrameID).To(Equal(out.Outcome.FrameID))
		})

		It("accepts async requests and reports their status", func() {
			resp, body := do(http.MethodPost, "/v1/generations", api.GenerationRequest{
				NodeID:  node.String(),
				AgentID: "summarizer",
				Mode:    generation.ModeAsync,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			var accepted api.GenerationResponse
			decode(body, &accepted)
			Expect(resp.Header.Get("Location")).To(Equal("/v1/generations/" + string(accepted.Handle)))

			resp, body = do(http.MethodGet, "/v1/generations/"+string(accepted.Handle)+"?wait=5s", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(body))
			var out struct {
				Outcome struct {
					State string `json:"state"`
				} `json:"outcome"`
			}
			decode(body, &out)
			Expect(out.Outcome.State).To(Equal("completed"))
		})

		It("returns the failure kind of a failed generation", func() {
			gen.FailNext(errors.New("invalid request"))
			resp, body := do(http.MethodPost, "/v1/generations", api.GenerationRequest{
				NodeID:  node.String(),
				AgentID: "summarizer",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			var out struct {
				Outcome struct {
					State string            `json:"state"`
					Error *api.ErrorResponse `json:"error"`
				} `json:"outcome"`
			}
			decode(body, &out)
			Expect(out.Outcome.State).To(Equal("failed"))
			Expect(out.Outcome.Error.Kind).To(Equal(contextstore.KindInternal))
		})

		It("answers 202 when a sync wait times out", func() {
			gen.Gate = make(chan struct{})
			DeferCleanup(func() { close(gen.Gate) })

			resp, body := do(http.MethodPost, "/v1/generations", api.GenerationRequest{
				NodeID:  node.String(),
				AgentID: "summarizer",
				Timeout: "20ms",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted), string(body))
		})

		It("cancels a running generation", func() {
			gen.Gate = make(chan struct{})
			gen.Started = make(chan struct{}, 1)
			DeferCleanup(func() { close(gen.Gate) })

			h, err := queue.Enqueue(ctx, node, "summarizer", generation.RequestOptions{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(gen.Started).Should(Receive())

			resp, _ := do(http.MethodDelete, "/v1/generations/"+string(h), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			out, err := queue.Await(ctx, h, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State).To(Equal(generation.StateFailed))
		})

		It("returns 404 for unknown handles", func() {
			resp, _ := do(http.MethodGet, "/v1/generations/unknown", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("validates the request body", func() {
			resp, _ := do(http.MethodPost, "/v1/generations", api.GenerationRequest{NodeID: "abc", AgentID: "summarizer"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("answers 503 when generation is not configured", func() {
			bare, err := api.NewServer(api.Config{DisableMCP: true, Gatherer: prometheus.NewRegistry()}, store, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := bare.App().Test(httptest.NewRequest(http.MethodGet, "/v1/generations/x", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	It("reports store and queue stats", func() {
		write("summarizer", "a")
		resp, body := do(http.MethodGet, "/v1/stats", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var out api.StatsResponse
		decode(body, &out)
		Expect(out.Store.Frames).To(Equal(int64(1)))
		Expect(out.Generation).NotTo(BeNil())
	})

	It("serves prometheus metrics", func() {
		_, _, err := queue.Submit(ctx, node, "summarizer", generation.RequestOptions{})
		Expect(err).NotTo(HaveOccurred())

		resp, body := do(http.MethodGet, "/metrics", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("frames_generation_requests_total"))
	})
})
