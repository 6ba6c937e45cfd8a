package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/view"
)

var (
	getHeadToolName    = "get_head"
	getHeadDescription = "Get the current frame identifier an agent has committed for a node. Returns found=false when the agent has no frame for the node."

	listHeadsToolName    = "list_heads"
	listHeadsDescription = "List the current head of every agent for a node, ordered by agent."

	selectViewToolName    = "select_view"
	selectViewDescription = "Select a bounded, deterministic set of frames for a node. Ordering is recency (default) or agent. Heads are preferred over older frames."

	getFrameToolName    = "get_frame"
	getFrameDescription = "Fetch a frame by identifier, including its content. The frame is integrity checked before it is returned."
)

type GetHeadInput struct {
	NodeID  string `json:"node_id" jsonschema:"hex encoded node identifier"`
	AgentID string `json:"agent_id" jsonschema:"agent identifier"`
}

type HeadsInput struct {
	NodeID string `json:"node_id" jsonschema:"hex encoded node identifier"`
}

type SelectViewInput struct {
	NodeID        string   `json:"node_id" jsonschema:"hex encoded node identifier"`
	Ordering      string   `json:"ordering,omitempty" jsonschema:"recency or agent (default: recency)"`
	IncludeAgents []string `json:"include_agents,omitempty" jsonschema:"only include these agents"`
	ExcludeAgents []string `json:"exclude_agents,omitempty" jsonschema:"exclude these agents"`
	MaxFrames     int      `json:"max_frames,omitempty" jsonschema:"maximum frames to return (default: 16)"`
	HeadsOnly     bool     `json:"heads_only,omitempty" jsonschema:"only return current heads"`
}

type GetFrameInput struct {
	FrameID string `json:"frame_id" jsonschema:"hex encoded frame identifier"`
}

// Head is the tool representation of a head.
type Head struct {
	NodeID    string `json:"node_id"`
	AgentID   string `json:"agent_id"`
	FrameID   string `json:"frame_id"`
	Seq       uint64 `json:"seq"`
	UpdatedAt string `json:"updated_at"`
}

type GetHeadOutput struct {
	Found bool  `json:"found"`
	Head  *Head `json:"head,omitempty"`
}

type HeadsOutput struct {
	NodeID string `json:"node_id"`
	Heads  []Head `json:"heads"`
	Count  int    `json:"count"`
}

// ViewFrame is one selected frame.
type ViewFrame struct {
	FrameID string `json:"frame_id"`
	AgentID string `json:"agent_id"`
	Seq     uint64 `json:"seq"`
	IsHead  bool   `json:"is_head"`
}

type SelectViewOutput struct {
	NodeID string      `json:"node_id"`
	Frames []ViewFrame `json:"frames"`
	Count  int         `json:"count"`
}

type GetFrameOutput struct {
	FrameID   string            `json:"frame_id"`
	NodeID    string            `json:"node_id"`
	AgentID   string            `json:"agent_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func (s *Server) handleGetHead(ctx context.Context, _ *mcp.CallToolRequest, input GetHeadInput) (*mcp.CallToolResult, GetHeadOutput, error) {
	node, err := identity.ParseNodeID(input.NodeID)
	if err != nil {
		return s.toolError("get_head", err), GetHeadOutput{}, nil
	}
	if err := s.config.Store.Agents().Check(input.AgentID); err != nil {
		return s.toolError("get_head", err), GetHeadOutput{}, nil
	}

	h, ok, err := s.config.Store.GetHead(ctx, node, input.AgentID)
	if err != nil {
		return s.toolError("get_head", err), GetHeadOutput{}, nil
	}
	out := GetHeadOutput{Found: ok}
	if ok {
		head := toHead(h)
		out.Head = &head
	}
	return toolResult(s.config.Logger, "get_head", out)
}

func (s *Server) handleListHeads(ctx context.Context, _ *mcp.CallToolRequest, input HeadsInput) (*mcp.CallToolResult, HeadsOutput, error) {
	node, err := identity.ParseNodeID(input.NodeID)
	if err != nil {
		return s.toolError("list_heads", err), HeadsOutput{}, nil
	}
	heads, err := s.config.Store.GetAllHeadsForNode(ctx, node)
	if err != nil {
		return s.toolError("list_heads", err), HeadsOutput{}, nil
	}

	out := HeadsOutput{NodeID: node.String(), Heads: make([]Head, 0, len(heads)), Count: len(heads)}
	for _, h := range heads {
		out.Heads = append(out.Heads, toHead(h))
	}
	return toolResult(s.config.Logger, "list_heads", out)
}

func (s *Server) handleSelectView(ctx context.Context, _ *mcp.CallToolRequest, input SelectViewInput) (*mcp.CallToolResult, SelectViewOutput, error) {
	node, err := identity.ParseNodeID(input.NodeID)
	if err != nil {
		return s.toolError("select_view", err), SelectViewOutput{}, nil
	}
	var ordering view.Ordering
	if err := ordering.UnmarshalText([]byte(input.Ordering)); err != nil {
		return s.toolError("select_view", err), SelectViewOutput{}, nil
	}

	entries, err := s.config.Store.SelectView(ctx, node, view.Policy{
		Ordering:      ordering,
		IncludeAgents: input.IncludeAgents,
		ExcludeAgents: input.ExcludeAgents,
		MaxFrames:     input.MaxFrames,
		HeadsOnly:     input.HeadsOnly,
	})
	if err != nil {
		return s.toolError("select_view", err), SelectViewOutput{}, nil
	}

	out := SelectViewOutput{NodeID: node.String(), Frames: make([]ViewFrame, 0, len(entries)), Count: len(entries)}
	for _, e := range entries {
		out.Frames = append(out.Frames, ViewFrame{
			FrameID: e.FrameID.String(),
			AgentID: e.AgentID,
			Seq:     e.Seq,
			IsHead:  e.IsHead,
		})
	}
	return toolResult(s.config.Logger, "select_view", out)
}

func (s *Server) handleGetFrame(ctx context.Context, _ *mcp.CallToolRequest, input GetFrameInput) (*mcp.CallToolResult, GetFrameOutput, error) {
	id, err := identity.ParseFrameID(input.FrameID)
	if err != nil {
		return s.toolError("get_frame", err), GetFrameOutput{}, nil
	}
	f, err := s.config.Store.GetFrame(ctx, id)
	if err != nil {
		return s.toolError("get_frame", err), GetFrameOutput{}, nil
	}

	return toolResult(s.config.Logger, "get_frame", GetFrameOutput{
		FrameID:   f.ID.String(),
		NodeID:    f.NodeID.String(),
		AgentID:   f.AgentID,
		Content:   string(f.Content),
		Metadata:  f.Metadata,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func toHead(h storage.Head) Head {
	return Head{
		NodeID:    h.NodeID.String(),
		AgentID:   h.AgentID,
		FrameID:   h.FrameID.String(),
		Seq:       h.Seq,
		UpdatedAt: h.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// toolError reports a failed call as a tool error result, prefixed with the
// error kind so callers can tell retryable failures apart.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	kind := contextstore.KindOf(err)
	if kind == contextstore.KindIntegrityViolation || kind == contextstore.KindInternal {
		s.config.Logger.Error("MCP tool failed", "tool", tool, "error", err)
	} else {
		s.config.Logger.Debug("MCP tool rejected", "tool", tool, "kind", string(kind), "error", err)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", kind, err)},
		},
	}
}

// toolResult returns out as structured content along with its serialized
// JSON in a TextContent block for clients without structured output support.
func toolResult[T any](logger *slog.Logger, tool string, out T) (*mcp.CallToolResult, T, error) {
	b, err := json.Marshal(out)
	if err != nil {
		logger.Error("failed to marshal MCP tool output", "tool", tool, "error", err)
		var zero T
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, out, nil
}
