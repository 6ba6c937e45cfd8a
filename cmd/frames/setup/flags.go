package setup

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/pkg/config"
)

// Flag values reach commands through viper once Load binds them.

// AddStoreFlags registers the storage flags on cmd.
func AddStoreFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.StoreFlags)
}

// AddGenerationFlags registers the generator and queue flags on cmd.
func AddGenerationFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.GenerationFlags)
}

// AddServeFlags registers the API server and event stream flags on cmd.
func AddServeFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.ServeFlags)
}
