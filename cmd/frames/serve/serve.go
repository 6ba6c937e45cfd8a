// Package servecmder provides the serve command, which runs the HTTP API,
// MCP endpoint and generation queue over one store.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/api"
	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/config"
)

const serveLongDesc string = `Run the frames API server.

Serves node, head, view and frame queries, direct writes and generation
requests over HTTP, an MCP endpoint at /mcp for agent clients, and
Prometheus metrics at /metrics.

Generation reads node content from --root, defaulting to the last ingested
directory.

Examples:
  frames serve
  frames serve --listen :9000 --driver postgres --provider anthropic
  frames serve --eventstream kafka --kafka-topic frames.events`

const serveShortDesc string = "Run the frames API server"

// shutdownTimeout bounds draining in-flight generations on exit.
const shutdownTimeout = 30 * time.Second

type serveCommander struct {
	root       string
	disableMCP bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup.Load(cmd, config.StoreFlags, config.GenerationFlags, config.ServeFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), env)
		},
	}

	cmd.Flags().StringVar(&cmder.root, "root", "", "Working tree generation reads from (default: last ingested directory)")
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP endpoint")
	setup.AddStoreFlags(cmd)
	setup.AddGenerationFlags(cmd)
	setup.AddServeFlags(cmd)

	return cmd
}

func (c *serveCommander) workingTree(env *setup.Env) (string, error) {
	root, err := env.WorkingTree(c.root)
	if errors.Is(err, setup.ErrNoIngest) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		env.Logger.Warn("nothing ingested yet; generation reads from the working directory", "root", wd)
		return wd, nil
	}
	return root, err
}

func (c *serveCommander) run(ctx context.Context, env *setup.Env) error {
	logFile, err := env.TeeLogToFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Registry = reg

	root, err := c.workingTree(env)
	if err != nil {
		return err
	}

	_, _, defaultWait, err := env.Config.Queue.Durations()
	if err != nil {
		return err
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	queue, err := env.NewQueue(store, root)
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:  env.Config.API.Listen,
		DefaultWait: defaultWait,
		Gatherer:    reg,
		DisableMCP:  c.disableMCP,
	}, store, queue, env.Logger)
	if err != nil {
		return err
	}

	env.Logger.Info("serving",
		"listen", env.Config.API.Listen,
		"driver", env.Config.Storage.Driver,
		"provider", env.Config.Generator.Provider,
		"root", root,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		env.Logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := server.Shutdown(); err != nil {
		env.Logger.Warn("API server shutdown", "error", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := queue.Close(drainCtx); err != nil {
		env.Logger.Warn("generation queue did not drain", "error", err)
	}

	return runErr
}
