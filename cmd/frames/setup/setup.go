// Package setup resolves configuration and builds the store, queue and
// providers shared by frames commands.
package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/dotdir"
	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/logger"
	"github.com/papercomputeco/frames/pkg/metadata"
)

// Persistent flag names registered on the root command.
const (
	FlagDebug     = "debug"
	FlagJSONLogs  = "json-logs"
	FlagConfigDir = "config-dir"
)

// Env is the resolved configuration of one command invocation.
type Env struct {
	Config    *config.Config
	ConfigDir string
	Logger    *slog.Logger

	// Registry collects metrics when set. Commands that don't expose
	// metrics leave it nil.
	Registry *prometheus.Registry

	debug bool
}

// Load resolves configuration for cmd with precedence
// flag > env > config file > default. Flags in flagSets must already be
// registered on cmd.
func Load(cmd *cobra.Command, flagSets ...config.FlagSet) (*Env, error) {
	configDir, _ := cmd.Flags().GetString(FlagConfigDir)
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	jsonLogs, _ := cmd.Flags().GetBool(FlagJSONLogs)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	for _, fs := range flagSets {
		config.BindRegisteredFlags(v, cmd, fs, fs.Keys())
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, err
	}

	return &Env{
		Config:    cfg,
		ConfigDir: dir,
		Logger: logger.New(
			logger.WithDebug(debug),
			logger.WithFormat(consoleFormat(jsonLogs)),
			logger.WithWriter(os.Stderr),
		),
		debug: debug,
	}, nil
}

func consoleFormat(jsonLogs bool) logger.Format {
	switch {
	case jsonLogs:
		return logger.FormatJSON
	case cliui.IsTerminal(os.Stderr):
		return logger.FormatPretty
	}
	return logger.FormatText
}

// TeeLogToFile makes e.Logger also append JSON records to frames.log in
// the config directory. The caller closes the returned file on exit.
func (e *Env) TeeLogToFile() (io.Closer, error) {
	fileLog, f, err := logger.OpenFile(filepath.Join(e.ConfigDir, dotdir.LogFile), logger.WithDebug(e.debug))
	if err != nil {
		return nil, err
	}
	e.Logger = logger.Multi(e.Logger, fileLog)
	return f, nil
}

// Agents builds the agent registry. An empty agent list yields an open
// registry.
func (e *Env) Agents() (*agent.Registry, error) {
	if len(e.Config.Agents) == 0 {
		return agent.Open(), nil
	}
	agents := make([]agent.Agent, 0, len(e.Config.Agents))
	for _, a := range e.Config.Agents {
		agents = append(agents, agent.Agent{
			ID:          a.ID,
			Description: a.Description,
			Prompt:      a.Prompt,
			Model:       a.Model,
		})
	}
	return agent.NewRegistry(agents...)
}

// OpenStore opens the configured driver and wraps it in a context store.
func (e *Env) OpenStore(ctx context.Context) (*contextstore.Store, error) {
	driver, err := e.OpenDriver(ctx)
	if err != nil {
		return nil, err
	}

	agents, err := e.Agents()
	if err != nil {
		driver.Close()
		return nil, err
	}

	publisher, err := e.Publisher()
	if err != nil {
		driver.Close()
		return nil, err
	}

	var reg prometheus.Registerer
	if e.Registry != nil {
		reg = e.Registry
	}

	return contextstore.New(contextstore.Config{
		Driver:    driver,
		Agents:    agents,
		Metadata:  metadata.New(e.Config.Metadata),
		Publisher: publisher,
		Logger:    e.Logger,
		Metrics:   contextstore.NewMetrics(reg),
	})
}

// NewQueue builds a generation queue over store. root is the working tree
// the collector reads node content from.
func (e *Env) NewQueue(store *contextstore.Store, root string) (*generation.Queue, error) {
	gen, err := e.Generator()
	if err != nil {
		return nil, err
	}

	q := e.Config.Queue
	initial, maxBackoff, _, err := q.Durations()
	if err != nil {
		return nil, err
	}

	cfg := generation.Config{
		Store:          store,
		Generator:      gen,
		Collector:      &generator.FSCollector{Nodes: store, Root: root},
		Workers:        int(q.Workers),
		QueueSize:      int(q.QueueSize),
		MaxRetries:     int(q.MaxRetries),
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
		ProviderRPS:    q.ProviderRPS,
		ProviderBurst:  int(q.ProviderBurst),
		HistorySize:    int(q.HistorySize),
		Logger:         e.Logger,
	}
	if e.Registry != nil {
		cfg.Registerer = e.Registry
	}

	queue, err := generation.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating generation queue: %w", err)
	}
	return queue, nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
