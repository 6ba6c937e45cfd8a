package utils

import "github.com/charmbracelet/x/ansi"

// Truncate shortens s to maxLen display cells, appending "..." when cut.
// Multi-byte runes and escape sequences are never split.
func Truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "") + "..."
}

// ShortID abbreviates a hex identifier for display.
func ShortID(id string) string {
	const n = 12
	if len(id) <= n {
		return id
	}
	return id[:n]
}
