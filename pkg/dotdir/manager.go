// Package dotdir locates the .frames/ directory and names the files kept in
// it: config.toml, credentials.toml, the default SQLite database, the last
// ingest state and the service log.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the frames directory.
const DirName = ".frames"

// Files kept in the frames directory.
const (
	ConfigFile      = "config.toml"
	CredentialsFile = "credentials.toml"
	DatabaseFile    = "frames.db"
	IngestFile      = "ingest.json"
	LogFile         = "frames.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves the frames directory, creating it if needed:
//  1. overrideDir, when set
//  2. the nearest .frames/ in the working directory or one of its parents
//  3. ~/.frames/
func (m *Manager) Target(overrideDir string) (string, error) {
	dir := overrideDir
	if dir == "" {
		var err error
		if dir, err = m.discover(); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating frames directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// Path resolves the frames directory like Target and joins name to it.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DatabasePath is Path for the default SQLite database.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	return m.Path(overrideDir, DatabaseFile)
}

func (m *Manager) discover() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if local, ok := enclosing(cwd); ok {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// enclosing walks from dir toward the filesystem root looking for DirName.
func enclosing(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
