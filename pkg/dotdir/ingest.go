package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IngestState records the most recent tree ingest so commands can default to
// its root node.
type IngestState struct {
	// Root is the hex node ID of the ingested root directory.
	Root string `json:"root"`

	// Path is the absolute filesystem path that was ingested.
	Path string `json:"path"`

	Files       int       `json:"files"`
	Directories int       `json:"directories"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// LoadIngestState loads the state from a target .frames/ingest.json.
// Returns nil, nil if nothing has been ingested yet.
func (m *Manager) LoadIngestState(overrideDir string) (*IngestState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, IngestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ingest state: %w", err)
	}

	state := &IngestState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing ingest state: %w", err)
	}

	return state, nil
}

// SaveIngestState persists the state to a target .frames/ingest.json.
func (m *Manager) SaveIngestState(state *IngestState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil ingest state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ingest state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, IngestFile), data, 0o600); err != nil {
		return fmt.Errorf("writing ingest state: %w", err)
	}

	return nil
}

// ClearIngestState removes the state file. Returns nil if it doesn't exist.
func (m *Manager) ClearIngestState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, IngestFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing ingest state: %w", err)
	}

	return nil
}
