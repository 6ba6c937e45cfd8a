// Package static provides an offline generator that derives frame content
// from the node itself. Output is deterministic, which makes it useful for
// demos, tests and seeding a store without provider credentials.
package static

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// Generator renders a short structural description of a node.
type Generator struct{}

// New returns a static generator.
func New() *Generator {
	return &Generator{}
}

// Generate implements generator.Generator.
func (g *Generator) Generate(ctx context.Context, nc generator.NodeContext, ag agent.Agent) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", nc.Path)
	fmt.Fprintf(&b, "- agent: %s\n", ag.ID)
	fmt.Fprintf(&b, "- kind: %s\n", nc.Kind)

	if nc.Kind == merkle.KindDirectory {
		fmt.Fprintf(&b, "- entries: %d\n", len(nc.Children))
		for _, c := range nc.Children {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
		return []byte(b.String()), nil
	}

	fmt.Fprintf(&b, "- bytes: %d\n", len(nc.Content))
	fmt.Fprintf(&b, "- lines: %d\n", bytes.Count(nc.Content, []byte{'\n'}))
	fmt.Fprintf(&b, "- content_digest: %s\n", identity.HashContent(nc.Content))
	if first, _, _ := bytes.Cut(nc.Content, []byte{'\n'}); len(first) > 0 {
		fmt.Fprintf(&b, "\n> %s\n", strings.TrimSpace(string(first)))
	}
	return []byte(b.String()), nil
}
