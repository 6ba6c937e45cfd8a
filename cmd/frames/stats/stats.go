// Package statscmder provides the stats command.
package statscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
)

type statsCommander struct {
	jsonOut bool
}

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env)
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print counts as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *statsCommander) run(cmd *cobra.Command, env *setup.Env) error {
	ctx := cmd.Context()

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return setup.PrintJSON(out, st)
	}

	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("driver "), env.Config.Storage.Driver)
	fmt.Fprintf(out, "  %s %d\n", cliui.KeyStyle.Render("nodes  "), st.Nodes)
	fmt.Fprintf(out, "  %s %d\n", cliui.KeyStyle.Render("frames "), st.Frames)
	fmt.Fprintf(out, "  %s %d\n", cliui.KeyStyle.Render("members"), st.Members)
	fmt.Fprintf(out, "  %s %d\n", cliui.KeyStyle.Render("heads  "), st.Heads)
	return nil
}
