package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/view"
)

// NodeResponse is a node record with its frame set root.
type NodeResponse struct {
	Node         *merkle.NodeRecord `json:"node"`
	FrameSetRoot identity.Digest    `json:"frame_set_root"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.store.Stats(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	resp := StatsResponse{Store: stats}
	if s.queue != nil {
		qs := s.queue.Stats()
		resp.Generation = &qs
	}
	return c.JSON(resp)
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	node, err := nodeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	rec, err := s.store.GetNode(c.UserContext(), node)
	if err != nil {
		return s.fail(c, err)
	}
	root, err := s.store.FrameSetRoot(c.UserContext(), node)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(NodeResponse{Node: rec, FrameSetRoot: root})
}

func (s *Server) handleListHeads(c *fiber.Ctx) error {
	node, err := nodeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	heads, err := s.store.GetAllHeadsForNode(c.UserContext(), node)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"node_id": node,
		"count":   len(heads),
		"heads":   heads,
	})
}

func (s *Server) handleGetHead(c *fiber.Ctx) error {
	node, err := nodeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	agentID := c.Params("agent")
	if err := s.store.Agents().Check(agentID); err != nil {
		return s.fail(c, err)
	}

	head, ok, err := s.store.GetHead(c.UserContext(), node, agentID)
	if err != nil {
		return s.fail(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no head for agent " + agentID})
	}
	return c.JSON(head)
}

func (s *Server) handleSelectView(c *fiber.Ctx) error {
	node, err := nodeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var policy view.Policy
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&policy); err != nil {
			return badRequest(c, "invalid view policy: "+err.Error())
		}
	}

	entries, err := s.store.SelectView(c.UserContext(), node, policy)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"node_id": node,
		"count":   len(entries),
		"frames":  entries,
	})
}

func (s *Server) handleGetFrame(c *fiber.Ctx) error {
	id, err := identity.ParseFrameID(c.Params("frame"))
	if err != nil {
		return badRequest(c, "invalid frame id: "+err.Error())
	}
	f, err := s.store.GetFrame(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(f)
}

func (s *Server) handleWriteFrame(c *fiber.Ctx) error {
	node, err := nodeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req WriteFrameRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	res, err := s.store.Write(c.UserContext(), req.writeRequest(node))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(WriteFrameResponse{FrameID: res.Frame.ID, Commit: res.Commit})
}

func (s *Server) handleSubmitGeneration(c *fiber.Ctx) error {
	if s.queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "generation is not configured"})
	}

	var req GenerationRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	node, err := identity.ParseNodeID(req.NodeID)
	if err != nil {
		return badRequest(c, "invalid node id: "+err.Error())
	}
	wait, err := s.waitParam(req.Timeout, s.config.DefaultWait)
	if err != nil {
		return badRequest(c, err.Error())
	}

	h, out, err := s.queue.Submit(c.UserContext(), node, req.AgentID, generation.RequestOptions{
		Force:    req.Force,
		Mode:     req.Mode,
		Source:   req.Source,
		Metadata: req.Metadata,
		Timeout:  wait,
	})
	switch {
	case errors.Is(err, generation.ErrTimeout):
		return s.accepted(c, h)
	case err != nil:
		return s.fail(c, err)
	case out == nil:
		return s.accepted(c, h)
	}
	return s.outcome(c, h, out)
}

func (s *Server) handleGetGeneration(c *fiber.Ctx) error {
	if s.queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "generation is not configured"})
	}
	h := generation.Handle(c.Params("id"))

	if raw := c.Query("wait"); raw != "" {
		wait, err := s.waitParam(raw, 0)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if wait > 0 {
			out, err := s.queue.Await(c.UserContext(), h, wait)
			if err == nil {
				return s.outcome(c, h, out)
			}
			if !errors.Is(err, generation.ErrTimeout) {
				return s.fail(c, err)
			}
		}
	}

	out, err := s.queue.Status(h)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(GenerationResponse{Handle: h, Outcome: newOutcomeResponse(out)})
}

func (s *Server) handleCancelGeneration(c *fiber.Ctx) error {
	if s.queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "generation is not configured"})
	}
	if err := s.queue.Cancel(generation.Handle(c.Params("id"))); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// accepted answers for a request still in flight.
func (s *Server) accepted(c *fiber.Ctx, h generation.Handle) error {
	c.Location("/v1/generations/" + string(h))
	return c.Status(fiber.StatusAccepted).JSON(GenerationResponse{Handle: h})
}

// outcome answers with a finished request. A failed request carries the
// status of its error kind.
func (s *Server) outcome(c *fiber.Ctx, h generation.Handle, out *generation.Outcome) error {
	resp := GenerationResponse{Handle: h, Outcome: newOutcomeResponse(out)}
	if out.Err != nil {
		return c.Status(statusFor(resp.Outcome.Error.Kind)).JSON(resp)
	}
	return c.JSON(resp)
}
