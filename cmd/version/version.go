// Package versioncmder implements "frames version".
package versioncmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/pkg/utils"
)

type versionCommander struct {
	jsonOut bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the frames version",
		Long:  "Print the version, commit and build time of this frames binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print build information as JSON")

	return cmd
}

func (c *versionCommander) run(cmd *cobra.Command) error {
	info := utils.Build()
	out := cmd.OutOrStdout()

	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	sha := info.Sha
	if info.Modified {
		sha += " (modified)"
	}
	_, err := fmt.Fprintf(out, "frames %s\ncommit:   %s\nbuilt:    %s\ngo:       %s\n",
		info.Version, sha, info.BuiltAt, info.GoVersion)
	return err
}
