// Package framescmder
package framescmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/frames/cmd/frames/auth"
	configcmder "github.com/papercomputeco/frames/cmd/frames/config"
	generatecmder "github.com/papercomputeco/frames/cmd/frames/generate"
	headscmder "github.com/papercomputeco/frames/cmd/frames/heads"
	ingestcmder "github.com/papercomputeco/frames/cmd/frames/ingest"
	initcmder "github.com/papercomputeco/frames/cmd/frames/init"
	migratecmder "github.com/papercomputeco/frames/cmd/frames/migrate"
	servecmder "github.com/papercomputeco/frames/cmd/frames/serve"
	"github.com/papercomputeco/frames/cmd/frames/setup"
	showcmder "github.com/papercomputeco/frames/cmd/frames/show"
	statscmder "github.com/papercomputeco/frames/cmd/frames/stats"
	viewcmder "github.com/papercomputeco/frames/cmd/frames/view"
	watchcmder "github.com/papercomputeco/frames/cmd/frames/watch"
	writecmder "github.com/papercomputeco/frames/cmd/frames/write"
	versioncmder "github.com/papercomputeco/frames/cmd/version"
)

const framesLongDesc string = `Frames is a content-addressed context store for agents.

Snapshot a tree, then attach frames (agent-authored context) to its nodes:
  frames ingest                     Snapshot the current repository
  frames generate <path> <agent>    Generate a frame with a provider
  frames write <path> <agent>       Write a frame directly
  frames heads <path>               Latest frame per agent
  frames view <path>                Bounded view for a consumer
  frames serve                      Run the HTTP and MCP API`

const framesShortDesc string = "Frames - Context Store for Agents"

func NewFramesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "frames",
		Short:         framesShortDesc,
		Long:          framesLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(setup.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool(setup.FlagJSONLogs, false, "Write logs as JSON")
	cmd.PersistentFlags().String(setup.FlagConfigDir, "", "Override the .frames/ directory")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(headscmder.NewHeadsCmd())
	cmd.AddCommand(viewcmder.NewViewCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(writecmder.NewWriteCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
