package sqldriver

import _ "embed"

// SQLiteSchema is the DDL shared by SQLite compatible backends.
//
//go:embed schema_sqlite.sql
var SQLiteSchema string
