package identity

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RootPath is the canonical path of the ingestion root.
const RootPath = "."

// CanonicalPath normalizes p into the form used for hashing: NFC unicode,
// slash separated, no redundant elements, no leading "./" or "/".
// The empty path and "/" both canonicalize to RootPath.
func CanonicalPath(p string) string {
	p = norm.NFC.String(p)
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return RootPath
	}
	return p
}

// JoinPath joins a canonical parent path and a child name.
func JoinPath(parent, name string) string {
	if parent == RootPath || parent == "" {
		return CanonicalPath(name)
	}
	return CanonicalPath(parent + "/" + name)
}
