package sqldriver

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name identifies the backend in errors and logs
	Name string

	// Numbered switches placeholders from "?" to "$1, $2, ..."
	Numbered bool

	// Schema is the DDL applied on open. Statements are separated by ";".
	Schema string

	// RestoreSeq, when set, runs after a head is restored with an explicit
	// sequence so later allocations stay ahead of it. Its one argument is
	// the restored sequence.
	RestoreSeq string

	// LockNode, when set, locks a node row for the rest of the transaction.
	// Its one argument is the NodeID. Backends that serialize writers
	// leave it empty.
	LockNode string

	// Transient classifies backend errors worth retrying.
	Transient func(error) bool
}

// rebind rewrites "?" placeholders for numbered dialects.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) statements() []string {
	var out []string
	for _, stmt := range strings.Split(d.Schema, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
