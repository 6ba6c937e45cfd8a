// Package ingestcmder provides the ingest command, which snapshots a
// directory tree into content-addressed nodes.
package ingestcmder

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/git"
	"github.com/papercomputeco/frames/pkg/merkle"
)

const ingestLongDesc string = `Snapshot a directory tree into the store.

Every file and directory becomes a node whose ID is derived from its
canonical path, content and children. Re-ingesting an unchanged tree yields
the same root node ID and writes nothing new.

Without an argument the enclosing git repository, or the working
directory, is ingested. The root is remembered so later commands accept
paths relative to it in place of node IDs.

Examples:
  frames ingest
  frames ingest ./src --ignore node_modules`

const ingestShortDesc string = "Snapshot a directory tree into the store"

type ingestCommander struct {
	ignore      []string
	concurrency int
	jsonOut     bool
}

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args)
		},
	}

	cmd.Flags().StringSliceVar(&cmder.ignore, "ignore", nil, "Entry names to skip at any depth (default .git, .frames)")
	cmd.Flags().IntVar(&cmder.concurrency, "concurrency", 0, "Parallel file hashing (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the result as JSON")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *ingestCommander) run(cmd *cobra.Command, env *setup.Env, args []string) error {
	ctx := cmd.Context()

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		var err error
		if dir, err = git.IngestRoot(ctx); err != nil {
			return err
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := merkle.IngestOptions{Ignore: c.ignore, Concurrency: c.concurrency}

	var res *merkle.IngestResult
	ingest := func() error {
		var err error
		res, err = store.IngestTree(ctx, dir, opts)
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		err = ingest()
	} else {
		err = cliui.Step(cmd.ErrOrStderr(), "Ingesting "+dir, ingest)
	}
	if err != nil {
		return err
	}

	if err := env.RecordIngest(dir, res); err != nil {
		env.Logger.Warn("could not record ingest state", "error", err)
	}

	if c.jsonOut {
		return setup.PrintJSON(out, ingestSummary{
			Root:        res.Root.String(),
			Path:        dir,
			Files:       res.Files,
			Directories: res.Directories,
			Written:     res.Written,
		})
	}
	printSummary(out, dir, res)
	return nil
}

type ingestSummary struct {
	Root        string `json:"root"`
	Path        string `json:"path"`
	Files       int    `json:"files"`
	Directories int    `json:"directories"`
	Written     int    `json:"written"`
}

func printSummary(out io.Writer, dir string, res *merkle.IngestResult) {
	fmt.Fprintf(out, "\n  %s %s\n", cliui.KeyStyle.Render("root"), res.Root)
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("path"), dir)
	fmt.Fprintf(out, "  %s %d files, %d directories, %d new nodes\n\n",
		cliui.KeyStyle.Render("size"), res.Files, res.Directories, res.Written)
}
