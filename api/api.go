package api

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/frames/api/mcp"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
)

// Server is the API server over a context store and its generation queue.
type Server struct {
	config   Config
	store    *contextstore.Store
	queue    *generation.Queue
	logger   *slog.Logger
	validate *validator.Validate
	app      *fiber.App
}

// NewServer creates a new API server. queue may be nil, in which case the
// generation routes answer 503.
func NewServer(config Config, store *contextstore.Store, queue *generation.Queue, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("context store is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.DefaultWait <= 0 {
		config.DefaultWait = DefaultWait
	}
	if config.MaxWait <= 0 {
		config.MaxWait = MaxWait
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		config:   config,
		store:    store,
		queue:    queue,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1")
	v1.Get("/stats", s.handleStats)
	v1.Get("/nodes/:node", s.handleGetNode)
	v1.Get("/nodes/:node/heads", s.handleListHeads)
	v1.Get("/nodes/:node/heads/:agent", s.handleGetHead)
	v1.Post("/nodes/:node/view", s.handleSelectView)
	v1.Post("/nodes/:node/frames", s.handleWriteFrame)
	v1.Get("/frames/:frame", s.handleGetFrame)
	v1.Post("/generations", s.handleSubmitGeneration)
	v1.Get("/generations/:id", s.handleGetGeneration)
	v1.Delete("/generations/:id", s.handleCancelGeneration)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{Store: store, Logger: logger})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
