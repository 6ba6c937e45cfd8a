// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/frames/pkg/storage/sqldriver"
)

// Dialect is the SQLite dialect.
var Dialect = sqldriver.Dialect{
	Name:      "sqlite",
	Schema:    sqldriver.SQLiteSchema,
	Transient: isTransient,
}

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*sqldriver.Driver
}

// NewSQLiteDriver creates a new SQLite-backed store at dbPath.
//
// The database runs in WAL mode with a single connection, so SQLite's one
// writer never contends with itself and transactions serialize in process.
func NewSQLiteDriver(ctx context.Context, dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	drv, err := sqldriver.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDriver{Driver: drv}, nil
}

func isTransient(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return false
}
