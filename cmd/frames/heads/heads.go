// Package headscmder provides the heads command, which lists the latest
// frame per agent for a node.
package headscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/storage"
)

const headsLongDesc string = `List the head frame of every agent for a node.

The node is a hex node ID or a path inside the last ingested tree. With an
agent argument only that agent's head is shown, and a missing head is an
error.

Examples:
  frames heads .
  frames heads pkg/storage/driver.go summarizer
  frames heads 3f2a...c9 --json`

const headsShortDesc string = "List head frames for a node"

type headsCommander struct {
	jsonOut bool
}

func NewHeadsCmd() *cobra.Command {
	cmder := &headsCommander{}

	cmd := &cobra.Command{
		Use:   "heads <node|path> [agent]",
		Short: headsShortDesc,
		Long:  headsLongDesc,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args)
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print heads as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *headsCommander) run(cmd *cobra.Command, env *setup.Env, args []string) error {
	ctx := cmd.Context()

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	node, err := env.ResolveNode(ctx, store, args[0])
	if err != nil {
		return err
	}

	var heads []storage.Head
	if len(args) == 2 {
		head, ok, err := store.GetHead(ctx, node, args[1])
		if err != nil {
			return err
		}
		if !ok {
			return storage.NotFoundError{Kind: storage.KindHead, ID: node.Short() + "/" + args[1]}
		}
		heads = []storage.Head{head}
	} else {
		heads, err = store.GetAllHeadsForNode(ctx, node)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return setup.PrintJSON(out, heads)
	}
	if len(heads) == 0 {
		fmt.Fprintf(out, "no heads for node %s\n", node.Short())
		return nil
	}
	fmt.Fprintln(out, setup.HeadsTable(heads))
	return nil
}
