// Package migratecmder provides the migrate-heads command, which rewrites
// heads keyed by the retired frame-type field into the (node, agent) index.
package migratecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/storage/migrate"
	"github.com/papercomputeco/frames/pkg/utils"
)

const migrateLongDesc string = `Migrate legacy head entries.

Older stores kept one head per (node, agent, frame type). This collapses them
into one head per (node, agent), keeping the newest entry of each collision.
Entries pointing at missing frames are dropped as orphans. Running it again is
a no-op.

Examples:
  frames migrate-heads --dry-run
  frames migrate-heads --driver postgres`

const migrateShortDesc string = "Migrate legacy head entries"

type migrateCommander struct {
	dryRun     bool
	keepLegacy bool
	jsonOut    bool
}

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}

	cmd := &cobra.Command{
		Use:   "migrate-heads",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env)
		},
	}

	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().BoolVar(&cmder.keepLegacy, "keep-legacy", false, "Leave legacy entries in place after migrating")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the report as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *migrateCommander) run(cmd *cobra.Command, env *setup.Env) error {
	ctx := cmd.Context()

	driver, err := env.OpenDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	store, ok := driver.(migrate.Store)
	if !ok {
		return fmt.Errorf("storage driver %q has no legacy head support", env.Config.Storage.Driver)
	}

	report, err := migrate.Run(ctx, store, env.Logger, migrate.Options{
		DryRun:     c.dryRun,
		KeepLegacy: c.keepLegacy,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return setup.PrintJSON(out, report)
	}

	verb := "migrated"
	if report.DryRun {
		verb = "would migrate"
	}
	fmt.Fprintf(out, "  %s %s %d of %d legacy heads, %d orphaned\n",
		cliui.SuccessMark, verb, report.Written, report.Read, report.Orphaned)

	if len(report.Conflicts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(report.Conflicts))
	for _, cf := range report.Conflicts {
		rows = append(rows, []string{
			cf.NodeID.Short(),
			cf.AgentID,
			utils.ShortID(cf.Kept.String()),
			utils.ShortID(cf.Dropped.String()),
			cf.KeptFrom,
		})
	}
	fmt.Fprintln(out, cliui.Table([]string{"NODE", "AGENT", "KEPT", "DROPPED", "FROM"}, rows))
	return nil
}
