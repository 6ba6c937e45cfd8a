package generator

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/merkle"
)

// DefaultInstruction is used for agents registered without a prompt.
const DefaultInstruction = "Write a concise, factual summary of this node for engineers new to the codebase."

// Instruction returns the agent's instruction, or the default.
func Instruction(ag agent.Agent) string {
	if strings.TrimSpace(ag.Prompt) != "" {
		return ag.Prompt
	}
	return DefaultInstruction
}

// Render formats a node context as the user message sent to providers.
func Render(nc NodeContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\nKind: %s\nNode: %s\n", nc.Path, nc.Kind, nc.NodeID)

	if nc.Kind == merkle.KindDirectory {
		b.WriteString("\nEntries:\n")
		for _, c := range nc.Children {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		return b.String()
	}

	b.WriteString("\nContent:\n```\n")
	b.Write(nc.Content)
	if len(nc.Content) > 0 && nc.Content[len(nc.Content)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
	if nc.Truncated {
		b.WriteString("(content truncated)\n")
	}
	return b.String()
}
