// Package writecmder provides the write command, which commits a frame
// directly without going through generation.
package writecmder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/contextstore"
	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/identity"
)

const writeLongDesc string = `Write a frame for a node and agent.

Content comes from --content, --file, or standard input. The frame becomes
the agent's head for the node. Writing identical content again is a no-op
that reports the existing frame.

Examples:
  frames write README.md summarizer --content "Project overview"
  frames write . reviewer --file review.md --meta model=gpt-4o
  git log -5 | frames write . historian`

const writeShortDesc string = "Write a frame directly"

type writeCommander struct {
	content  string
	file     string
	fields   map[string]string
	metadata map[string]string
	jsonOut  bool
}

func NewWriteCmd() *cobra.Command {
	cmder := &writeCommander{}

	cmd := &cobra.Command{
		Use:   "write <node|path> <agent>",
		Short: writeShortDesc,
		Long:  writeLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup.Load(cmd, config.StoreFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, env, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&cmder.content, "content", "c", "", "Frame content")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Read frame content from a file")
	cmd.Flags().StringToStringVar(&cmder.fields, "field", nil, "Identity field name=value (part of the frame ID)")
	cmd.Flags().StringToStringVar(&cmder.metadata, "meta", nil, "Metadata key=value (not part of the frame ID)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the commit as JSON")
	cmd.MarkFlagsMutuallyExclusive("content", "file")
	setup.AddStoreFlags(cmd)

	return cmd
}

func (c *writeCommander) readContent(in io.Reader) ([]byte, error) {
	switch {
	case c.content != "":
		return []byte(c.content), nil
	case c.file != "":
		return os.ReadFile(c.file)
	}
	b, err := io.ReadAll(io.LimitReader(in, contextstore.MaxContentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("no content: pass --content, --file, or pipe to stdin")
	}
	return b, nil
}

func (c *writeCommander) run(cmd *cobra.Command, env *setup.Env, nodeArg, agentID string) error {
	ctx := cmd.Context()

	content, err := c.readContent(cmd.InOrStdin())
	if err != nil {
		return err
	}

	fields := make([]identity.Field, 0, len(c.fields))
	for name, value := range c.fields {
		fields = append(fields, identity.Field{Name: name, Value: []byte(value)})
	}

	store, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	node, err := env.ResolveNode(ctx, store, nodeArg)
	if err != nil {
		return err
	}

	res, err := store.Write(ctx, contextstore.WriteRequest{
		NodeID:   node,
		AgentID:  agentID,
		Content:  content,
		Fields:   fields,
		Metadata: c.metadata,
		Origin:   eventstream.OriginWrite,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return setup.PrintJSON(out, res.Commit)
	}

	status := "committed"
	if !res.Commit.NewFrame {
		status = "unchanged"
	}
	fmt.Fprintf(out, "  %s %s %s seq %d (%s)\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(agentID),
		res.Commit.FrameID,
		res.Commit.Seq,
		status,
	)
	return nil
}
