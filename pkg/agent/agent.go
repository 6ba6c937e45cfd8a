// Package agent holds the registry of known agents. An agent ID is the only
// stream discriminator a head may carry, so every write is checked against
// the registry.
package agent

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// Agent describes one registered agent.
type Agent struct {
	ID          string `toml:"id" mapstructure:"id" json:"id"`
	Description string `toml:"description,omitempty" mapstructure:"description" json:"description,omitempty"`

	// Prompt is the instruction sent to the generation provider.
	Prompt string `toml:"prompt,omitempty" mapstructure:"prompt" json:"prompt,omitempty"`

	// Model overrides the provider's default model for this agent.
	Model string `toml:"model,omitempty" mapstructure:"model" json:"model,omitempty"`
}

// UnknownAgentError is returned for IDs that are not registered.
type UnknownAgentError struct {
	ID string
}

func (e UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.ID)
}

// InvalidAgentError is returned when registering a malformed agent.
type InvalidAgentError struct {
	ID     string
	Reason string
}

func (e InvalidAgentError) Error() string {
	return fmt.Sprintf("invalid agent %q: %s", e.ID, e.Reason)
}

// Registry is a concurrency-safe set of agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent

	// open accepts any well-formed ID, for stores used without a configured
	// registry.
	open bool
}

// NewRegistry builds a registry from agents.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Open returns a registry that accepts every well-formed agent ID.
func Open() *Registry {
	return &Registry{agents: map[string]Agent{}, open: true}
}

// Register adds a or fails if its ID is malformed or already taken.
func (r *Registry) Register(a Agent) error {
	if !idPattern.MatchString(a.ID) {
		return InvalidAgentError{ID: a.ID, Reason: "id must match " + idPattern.String()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return InvalidAgentError{ID: a.ID, Reason: "already registered"}
	}
	r.agents[a.ID] = a
	return nil
}

// Lookup returns the agent registered under id.
func (r *Registry) Lookup(id string) (Agent, error) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}
	if r.open && idPattern.MatchString(id) {
		return Agent{ID: id}, nil
	}
	return Agent{}, UnknownAgentError{ID: id}
}

// Check reports whether id is accepted.
func (r *Registry) Check(id string) error {
	_, err := r.Lookup(id)
	return err
}

// List returns registered agents sorted by ID.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the registered agent IDs, sorted.
func (r *Registry) IDs() []string {
	agents := r.List()
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return slices.Clip(ids)
}
