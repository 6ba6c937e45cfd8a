// Package generatecmder provides the generate command, which runs one
// generation request through the queue and waits for it.
package generatecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/generation"
)

const generateLongDesc string = `Generate a frame for a node with an agent.

The node's content is read from the working tree, sent to the configured
provider with the agent's prompt, and committed as the agent's new head.
Transient provider failures are retried with backoff. If the agent already
has a head for the node nothing is generated unless --force is set.

Examples:
  frames generate README.md summarizer
  frames generate . reviewer --provider anthropic --force
  frames generate 3f2a...c9 summarizer --timeout 30s --root ~/src/project`

const generateShortDesc string = "Generate a frame with a provider"

type generateCommander struct {
	force    bool
	timeout  time.Duration
	source   string
	root     string
	metadata map[string]string
	jsonOut  bool
}

func NewGenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "generate <node|path> <agent>",
		Short: generateShortDesc,
		Long:  generateLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags, config.GenerationFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&cmder.force, "force", false, "Generate even if the agent already has a head")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 0, "Give up waiting after this long (default queue.default_timeout)")
	cmd.Flags().StringVar(&cmder.source, "source", "", "Read content from this path instead of the node's")
	cmd.Flags().StringVar(&cmder.root, "root", "", "Working tree to read from (default: last ingested directory)")
	cmd.Flags().StringToStringVar(&cmder.metadata, "meta", nil, "Metadata key=value attached to the frame")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the outcome as JSON")
	setup.AddStoreFlags(cmd)
	setup.AddGenerationFlags(cmd)

	return cmd
}

func (c *generateCommander) run(cmd *cobra.Command, env *setup.Env, nodeArg, agentID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout := c.timeout
	if timeout == 0 {
		_, _, d, err := env.Config.Queue.Durations()
		if err != nil {
			return err
		}
		timeout = d
	}

	root, err := env.WorkingTree(c.root)
	if err != nil {
		return err
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	node, err := env.ResolveNode(ctx, store, nodeArg)
	if err != nil {
		return err
	}

	queue, err := env.NewQueue(store, root)
	if err != nil {
		return err
	}
	defer queue.Close(context.WithoutCancel(ctx))

	opts := generation.RequestOptions{
		Force:    c.force,
		Mode:     generation.ModeSync,
		Source:   c.source,
		Metadata: c.metadata,
		Timeout:  timeout,
	}

	var (
		handle  generation.Handle
		outcome *generation.Outcome
	)
	submit := func() error {
		h, o, err := queue.Submit(ctx, node, agentID, opts)
		handle = h
		if err != nil {
			return err
		}
		outcome = o
		return o.Err
	}

	if c.jsonOut {
		err = submit()
	} else {
		err = cliui.Step(cmd.ErrOrStderr(), fmt.Sprintf("Generating %s for %s", agentID, node.Short()), submit)
	}
	if outcome == nil {
		// Timed out or interrupted while waiting; don't leave the request
		// running behind the drain in Close.
		if handle != "" {
			_ = queue.Cancel(handle)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		printed := struct {
			*generation.Outcome
			Error string `json:"error,omitempty"`
		}{outcome, outcome.ErrorMessage()}
		if perr := setup.PrintJSON(out, printed); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("%s after %d attempt(s): %w", contextstore.KindOf(err), outcome.Attempts, err)
	}

	if outcome.Skipped {
		fmt.Fprintf(out, "  %s already has head %s (use --force to regenerate)\n", agentID, outcome.FrameID)
		return nil
	}
	fmt.Fprintf(out, "  %s %s seq %d after %d attempt(s)\n",
		cliui.KeyStyle.Render(agentID),
		outcome.Commit.FrameID,
		outcome.Commit.Seq,
		outcome.Attempts,
	)
	return nil
}
