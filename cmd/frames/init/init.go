// Package initcmder provides the init command for initializing a local .frames
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .frames/ directory in the current working directory.

Creates a local .frames/ directory for configuration, the default SQLite
database and ingest state. Commands run here or in any subdirectory use it
instead of ~/.frames/.

Use --preset to write a config.toml for a generation provider:
  static, anthropic, openai, ollama

Examples:
  frames init
  frames init --preset anthropic`

const initShortDesc string = "Initialize a local .frames/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Generation provider preset for config.toml")

	return cmd
}

func (c *initCommander) run(out io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .frames directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .frames directory: %s\n", dir)
	}

	if c.preset == "" {
		return nil
	}

	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s preset to %s\n", c.preset, cfger.GetTarget())
	return nil
}
