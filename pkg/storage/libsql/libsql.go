//go:build libsql

// Package libsql provides a libSQL-backed storage driver. It shares the
// SQLite schema and is compiled only with the libsql build tag, since
// go-libsql and go-sqlite3 both bundle SQLite symbols.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql" // register the libsql driver as "libsql"

	"github.com/papercomputeco/frames/pkg/storage/sqldriver"
)

// Driver implements storage.Driver using libSQL.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver opens a local libSQL database at path.
func NewDriver(ctx context.Context, path string) (*Driver, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// libsql returns rows for PRAGMA statements and ignores DSN pragmas.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		rows, err := db.QueryContext(ctx, pragma)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
		rows.Close()
	}

	drv, err := sqldriver.New(ctx, db, sqldriver.Dialect{
		Name:      "libsql",
		Schema:    sqldriver.SQLiteSchema,
		Transient: isTransient,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Driver{Driver: drv}, nil
}

// libsql surfaces SQLite result codes only through error text.
func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
