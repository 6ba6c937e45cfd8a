// Package watchcmder provides the watch command, which keeps a snapshot of a
// directory current and optionally queues generation for changed files.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
	"github.com/papercomputeco/frames/pkg/git"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/watch"
)

const watchLongDesc string = `Watch a directory and re-ingest it when files change.

Bursts of filesystem events are coalesced before each re-ingest. With
--generate, every changed file gets an asynchronous generation request per
listed agent. Files whose content did not change keep their node ID, so
agents that already have a head for them are skipped.

Examples:
  frames watch
  frames watch ./src --generate summarizer,reviewer`

const watchShortDesc string = "Re-ingest a directory as it changes"

type watchCommander struct {
	agents   []string
	debounce time.Duration
	ignore   []string

	env   *setup.Env
	store *contextstore.Store
	queue *generation.Queue
	dir   string
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags, config.GenerationFlags)
			if err != nil {
				return err
			}
			cmder.env = env
			return cmder.run(cmd.Context(), args)
		},
	}

	cmd.Flags().StringSliceVarP(&cmder.agents, "generate", "g", nil, "Agents to queue generation for on change")
	cmd.Flags().DurationVar(&cmder.debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-ingesting")
	cmd.Flags().StringSliceVar(&cmder.ignore, "ignore", nil, "Entry names to skip at any depth (default .git, .frames)")
	setup.AddStoreFlags(cmd)
	setup.AddGenerationFlags(cmd)

	return cmd
}

func (c *watchCommander) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		var err error
		if dir, err = git.IngestRoot(ctx); err != nil {
			return err
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	c.dir = dir

	logFile, err := c.env.TeeLogToFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	c.store, err = c.env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if len(c.agents) > 0 {
		for _, id := range c.agents {
			if err := c.store.Agents().Check(id); err != nil {
				return err
			}
		}
		c.queue, err = c.env.NewQueue(c.store, dir)
		if err != nil {
			return err
		}
		defer c.drain()
	}

	if _, err := c.ingest(ctx, nil); err != nil {
		return err
	}

	w, err := watch.New(dir, c.onChange, watch.Options{
		Debounce: c.debounce,
		Ignore:   c.ignore,
		Logger:   c.env.Logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	c.env.Logger.Info("watching for changes", "dir", dir, "agents", c.agents)
	return w.Run(ctx)
}

func (c *watchCommander) onChange(ctx context.Context, changed []string) error {
	_, err := c.ingest(ctx, changed)
	return err
}

// ingest snapshots the tree and queues generation for the changed paths.
// A nil changed list queues nothing.
func (c *watchCommander) ingest(ctx context.Context, changed []string) (*merkle.IngestResult, error) {
	res, err := c.store.IngestTree(ctx, c.dir, merkle.IngestOptions{Ignore: c.ignore})
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", c.dir, err)
	}
	if err := c.env.RecordIngest(c.dir, res); err != nil {
		c.env.Logger.Warn("could not record ingest state", "error", err)
	}

	c.env.Logger.Info("ingested",
		"root", res.Root.Short(),
		"files", res.Files,
		"written", res.Written,
		"changed", len(changed),
	)

	if c.queue == nil {
		return res, nil
	}

	for _, path := range changed {
		node, ok := res.Paths[identity.CanonicalPath(path)]
		if !ok {
			// Removed since the event fired.
			continue
		}
		for _, agentID := range c.agents {
			h, err := c.queue.Enqueue(ctx, node, agentID, generation.RequestOptions{Mode: generation.ModeAsync})
			if err != nil {
				c.env.Logger.Warn("could not queue generation",
					"path", path,
					"agent", agentID,
					"error", err,
					"kind", contextstore.KindOf(err),
				)
				continue
			}
			c.env.Logger.Debug("queued generation", "path", path, "agent", agentID, "handle", h)
		}
	}
	return res, nil
}

func (c *watchCommander) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.queue.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		c.env.Logger.Warn("generation queue did not drain", "error", err)
	}
	st := c.queue.Stats()
	fmt.Fprintf(os.Stderr, "generations: %d completed, %d skipped, %d failed\n", st.Completed, st.Skipped, st.Failed)
}
