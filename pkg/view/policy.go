package view

import (
	"errors"
	"fmt"
	"slices"
)

// Ordering selects how a view is sorted.
type Ordering int

const (
	// OrderRecency sorts newest commit first.
	OrderRecency Ordering = iota

	// OrderAgent groups frames by agent ID, newest first within an agent.
	OrderAgent
)

func (o Ordering) String() string {
	switch o {
	case OrderRecency:
		return "recency"
	case OrderAgent:
		return "agent"
	}
	return fmt.Sprintf("Ordering(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Ordering) MarshalText() ([]byte, error) {
	switch o {
	case OrderRecency, OrderAgent:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown ordering %d", ErrInvalidPolicy, int(o))
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string is
// recency.
func (o *Ordering) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "recency":
		*o = OrderRecency
	case "agent":
		*o = OrderAgent
	default:
		return fmt.Errorf("%w: unknown ordering %q", ErrInvalidPolicy, string(b))
	}
	return nil
}

const (
	// DefaultMaxFrames applies when a policy leaves MaxFrames unset.
	DefaultMaxFrames = 16

	// MaxFramesLimit is the largest bound a policy may declare.
	MaxFramesLimit = 256
)

// ErrInvalidPolicy is wrapped by every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid view policy")

// Policy is the closed set of options controlling a view.
type Policy struct {
	Ordering Ordering `json:"ordering"`

	// IncludeAgents restricts the view to these agents when non-empty.
	IncludeAgents []string `json:"include_agents,omitempty"`

	// ExcludeAgents removes these agents from the view.
	ExcludeAgents []string `json:"exclude_agents,omitempty"`

	// MaxFrames bounds the result. Zero means DefaultMaxFrames.
	MaxFrames int `json:"max_frames,omitempty"`

	// HeadsOnly limits the view to current heads.
	HeadsOnly bool `json:"heads_only,omitempty"`
}

// Normalize validates p and returns a copy with defaults applied and agent
// lists sorted and deduplicated.
func (p Policy) Normalize() (Policy, error) {
	switch {
	case p.MaxFrames < 0:
		return p, fmt.Errorf("%w: max_frames %d is negative", ErrInvalidPolicy, p.MaxFrames)
	case p.MaxFrames == 0:
		p.MaxFrames = DefaultMaxFrames
	case p.MaxFrames > MaxFramesLimit:
		return p, fmt.Errorf("%w: max_frames %d exceeds %d", ErrInvalidPolicy, p.MaxFrames, MaxFramesLimit)
	}
	if _, err := p.Ordering.MarshalText(); err != nil {
		return p, err
	}

	p.IncludeAgents = compact(p.IncludeAgents)
	p.ExcludeAgents = compact(p.ExcludeAgents)
	for _, a := range p.IncludeAgents {
		if _, found := slices.BinarySearch(p.ExcludeAgents, a); found {
			return p, fmt.Errorf("%w: agent %q is both included and excluded", ErrInvalidPolicy, a)
		}
	}
	return p, nil
}

func (p Policy) admits(agentID string) bool {
	if len(p.IncludeAgents) > 0 && !slices.Contains(p.IncludeAgents, agentID) {
		return false
	}
	return !slices.Contains(p.ExcludeAgents, agentID)
}

func compact(agents []string) []string {
	if len(agents) == 0 {
		return nil
	}
	out := slices.Clone(agents)
	slices.Sort(out)
	return slices.Compact(out)
}
