// Package utils holds small helpers shared by the frames commands that
// don't warrant a package of their own.
package utils

import (
	"runtime"
	"runtime/debug"
)

// Set at link time with -ldflags "-X".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Build reports the link-time version values. When they were not set, the
// VCS stamp the Go toolchain embeds fills in the revision and time.
func Build() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Sha:       Sha,
		BuiltAt:   Buildtime,
		GoVersion: runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Sha == "HEAD" {
				info.Sha = s.Value
			}
		case "vcs.time":
			if info.BuiltAt == "dev" {
				info.BuiltAt = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
