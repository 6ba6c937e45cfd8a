// Package mcp provides an MCP (Model Context Protocol) server exposing read
// access to a context store.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/utils"
)

type Config struct {
	// Store answers every tool call.
	Store *contextstore.Store

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the head, view and frame tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "frames",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)
	s.mcpServer = mcpServer

	if c.Noop {
		// no tools when MCP capabilities are disabled
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("context store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getHeadToolName,
		Description: getHeadDescription,
	}, s.handleGetHead)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listHeadsToolName,
		Description: listHeadsDescription,
	}, s.handleListHeads)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        selectViewToolName,
		Description: selectViewDescription,
	}, s.handleSelectView)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getFrameToolName,
		Description: getFrameDescription,
	}, s.handleGetFrame)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
