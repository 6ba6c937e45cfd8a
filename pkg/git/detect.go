// Package git provides utilities for detecting git repository information.
package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const detectTimeout = 5 * time.Second

// RepoRoot returns the absolute top-level directory of the git repository
// containing dir, or "" when dir is not inside one or git is unavailable.
func RepoRoot(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// RepoName returns the name of the current git repository.
// If not inside a git repo, it falls back to the base name of the working directory.
func RepoName() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	if top := RepoRoot(context.Background(), wd); top != "" {
		return filepath.Base(top)
	}
	return filepath.Base(wd)
}

// IngestRoot picks the directory to ingest when none is given: the enclosing
// repository root, otherwise the working directory.
func IngestRoot(ctx context.Context) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if top := RepoRoot(ctx, wd); top != "" {
		return top, nil
	}
	return wd, nil
}
