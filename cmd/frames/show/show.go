// Package showcmder provides the show command, which prints one frame after
// verifying its integrity.
package showcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/identity"
)

const showLongDesc string = `Show a frame by ID.

The frame is re-hashed on read; a frame whose bytes no longer match its ID
is reported as an integrity violation rather than shown.

Examples:
  frames show 9c1e...04
  frames show 9c1e...04 --raw > summary.md`

const showShortDesc string = "Show a frame"

type showCommander struct {
	raw     bool
	jsonOut bool
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <frame-id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args[0])
		},
	}

	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print only the frame content")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the frame as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, env *setup.Env, arg string) error {
	ctx := cmd.Context()

	id, err := identity.ParseFrameID(arg)
	if err != nil {
		return err
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := store.GetFrame(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case c.jsonOut:
		return setup.PrintJSON(out, f)
	case c.raw:
		_, err := out.Write(f.Content)
		return err
	}

	rendered, err := cliui.RenderMarkdown(setup.FrameMarkdown(f))
	if err != nil {
		env.Logger.Debug("markdown rendering failed", "error", err)
	}
	fmt.Fprint(out, rendered)
	return nil
}
