// Package configcmder provides the config command for managing persistent
// frames configuration stored in the .frames/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
)

const configLongDesc string = `Manage persistent frames configuration.

Configuration is stored as config.toml in the .frames/ directory and provides
default values for command flags. CLI flags and FRAMES_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example
storage.driver, queue.workers, generator.provider and eventstream.brokers.
Agents are registered with [[agents]] tables edited directly in config.toml.

Use subcommands to get, set, or list configuration values:
  frames config set <key> <value>    Set a configuration value
  frames config get <key>            Get a configuration value
  frames config list                 List all configuration values

Examples:
  frames config set storage.driver postgres
  frames config set generator.provider anthropic
  frames config get queue.workers
  frames config list`

const configShortDesc string = "Manage persistent frames configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(out io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
