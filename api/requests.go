package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
)

// WriteFrameRequest is the body of POST /v1/nodes/:node/frames.
type WriteFrameRequest struct {
	AgentID  string            `json:"agent_id" validate:"required,max=128"`
	Content  string            `json:"content" validate:"required"`
	Fields   []FieldRequest    `json:"fields,omitempty" validate:"max=32,dive"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FieldRequest is one identity field of a written frame.
type FieldRequest struct {
	Name  string `json:"name" validate:"required,max=64"`
	Value string `json:"value"`
}

// GenerationRequest is the body of POST /v1/generations.
type GenerationRequest struct {
	NodeID   string            `json:"node_id" validate:"required,hexadecimal,len=64"`
	AgentID  string            `json:"agent_id" validate:"required,max=128"`
	Force    bool              `json:"force,omitempty"`
	Mode     generation.Mode   `json:"mode"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timeout is a Go duration bounding a sync wait.
	Timeout string `json:"timeout,omitempty"`
}

// GenerationResponse describes an admitted request.
type GenerationResponse struct {
	Handle generation.Handle `json:"handle"`

	// Outcome is absent while the request has not been observed finishing.
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

// OutcomeResponse is a generation outcome with its error classified.
type OutcomeResponse struct {
	*generation.Outcome
	Error *ErrorResponse `json:"error,omitempty"`
}

// WriteFrameResponse is returned by a direct write.
type WriteFrameResponse struct {
	FrameID identity.FrameID      `json:"frame_id"`
	Commit  *storage.CommitResult `json:"commit"`
}

// StatsResponse combines store and queue counts.
type StatsResponse struct {
	Store      storage.Stats     `json:"store"`
	Generation *generation.Stats `json:"generation,omitempty"`
}

func newOutcomeResponse(out *generation.Outcome) *OutcomeResponse {
	if out == nil {
		return nil
	}
	resp := &OutcomeResponse{Outcome: out}
	if out.Err != nil {
		e := errorResponse(out.Err)
		resp.Error = &e
	}
	return resp
}

func (r WriteFrameRequest) writeRequest(node identity.NodeID) contextstore.WriteRequest {
	var fields []identity.Field
	for _, f := range r.Fields {
		fields = append(fields, identity.Field{Name: f.Name, Value: []byte(f.Value)})
	}
	return contextstore.WriteRequest{
		NodeID:   node,
		AgentID:  r.AgentID,
		Content:  []byte(r.Content),
		Fields:   fields,
		Metadata: r.Metadata,
	}
}

// bind parses and validates a JSON body.
func (s *Server) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func nodeParam(c *fiber.Ctx) (identity.NodeID, error) {
	id, err := identity.ParseNodeID(c.Params("node"))
	if err != nil {
		return identity.NodeID{}, fmt.Errorf("invalid node id: %w", err)
	}
	return id, nil
}

// waitParam parses a duration, clamping it to the configured maximum.
func (s *Server) waitParam(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return min(fallback, s.config.MaxWait), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid wait duration %q", raw)
	}
	return min(d, s.config.MaxWait), nil
}
