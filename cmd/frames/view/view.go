// Package viewcmder provides the view command, which composes the bounded
// set of frames handed to a consumer for a node.
package viewcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/view"
)

const viewLongDesc string = `Compose a view of a node's frames.

Heads of admitted agents come first, then older frames fill the remaining
slots. The same store state and policy always yield the same view.

Examples:
  frames view .
  frames view cmd/main.go --include summarizer --max 4
  frames view . --ordering agent --heads-only --content`

const viewShortDesc string = "Compose a bounded view of a node's frames"

type viewCommander struct {
	ordering  string
	include   []string
	exclude   []string
	maxFrames int
	headsOnly bool
	content   bool
	jsonOut   bool
}

func NewViewCmd() *cobra.Command {
	cmder := &viewCommander{}

	cmd := &cobra.Command{
		Use:   "view <node|path>",
		Short: viewShortDesc,
		Long:  viewLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.ordering, "ordering", view.OrderRecency.String(), "Frame ordering (recency, agent)")
	cmd.Flags().StringSliceVar(&cmder.include, "include", nil, "Only admit these agents")
	cmd.Flags().StringSliceVar(&cmder.exclude, "exclude", nil, "Never admit these agents")
	cmd.Flags().IntVar(&cmder.maxFrames, "max", view.DefaultMaxFrames, "Maximum frames in the view")
	cmd.Flags().BoolVar(&cmder.headsOnly, "heads-only", false, "Only include head frames")
	cmd.Flags().BoolVar(&cmder.content, "content", false, "Render each frame's content")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the view as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *viewCommander) policy() (view.Policy, error) {
	var p view.Policy
	if err := p.Ordering.UnmarshalText([]byte(c.ordering)); err != nil {
		return p, err
	}
	p.IncludeAgents = c.include
	p.ExcludeAgents = c.exclude
	p.MaxFrames = c.maxFrames
	p.HeadsOnly = c.headsOnly
	return p, nil
}

type viewFrame struct {
	view.Entry
	Frame *frame.Frame `json:"frame,omitempty"`
}

func (c *viewCommander) run(cmd *cobra.Command, env *setup.Env, arg string) error {
	ctx := cmd.Context()

	policy, err := c.policy()
	if err != nil {
		return err
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	node, err := env.ResolveNode(ctx, store, arg)
	if err != nil {
		return err
	}

	entries, err := store.SelectView(ctx, node, policy)
	if err != nil {
		return err
	}

	frames := make([]viewFrame, len(entries))
	for i, e := range entries {
		frames[i].Entry = e
		if c.content {
			if frames[i].Frame, err = store.GetFrame(ctx, e.FrameID); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return setup.PrintJSON(out, frames)
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "no frames for node %s\n", node.Short())
		return nil
	}

	fmt.Fprintln(out, setup.ViewTable(entries))
	if !c.content {
		return nil
	}
	for _, f := range frames {
		md := setup.FrameMarkdown(f.Frame)
		rendered, err := cliui.RenderMarkdown(md)
		if err != nil {
			env.Logger.Debug("markdown rendering failed", "error", err)
		}
		fmt.Fprint(out, rendered)
	}
	return nil
}
