package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/dotdir"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/badger"
	"github.com/papercomputeco/frames/pkg/storage/inmemory"
	"github.com/papercomputeco/frames/pkg/storage/postgres"
	"github.com/papercomputeco/frames/pkg/storage/sqlite"
)

// Opener opens a storage driver from config.
type Opener func(ctx context.Context, cfg config.StorageConfig, dir string, logger *slog.Logger) (storage.Driver, error)

// openers holds drivers compiled into this binary. Optional drivers add
// themselves from build-tagged files.
var openers = map[string]Opener{
	"sqlite":   openSQLite,
	"postgres": openPostgres,
	"badger":   openBadger,
	"memory":   openMemory,
}

// ErrDriverNotBuilt is returned for drivers excluded at build time.
var ErrDriverNotBuilt = errors.New("storage driver not compiled into this binary")

// OpenDriver opens the configured storage driver.
func (e *Env) OpenDriver(ctx context.Context) (storage.Driver, error) {
	name := e.Config.Storage.Driver
	open, ok := openers[name]
	if !ok {
		if name == "libsql" {
			return nil, fmt.Errorf("%s: %w (rebuild with -tags libsql)", name, ErrDriverNotBuilt)
		}
		return nil, fmt.Errorf("unknown storage driver %q", name)
	}

	driver, err := open(ctx, e.Config.Storage, e.ConfigDir, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", name, err)
	}
	return driver, nil
}

func openSQLite(ctx context.Context, cfg config.StorageConfig, dir string, logger *slog.Logger) (storage.Driver, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = filepath.Join(dir, dotdir.DatabaseFile)
	}
	logger.Debug("using SQLite storage", "path", path)
	return sqlite.NewSQLiteDriver(ctx, path)
}

func openPostgres(ctx context.Context, cfg config.StorageConfig, _ string, logger *slog.Logger) (storage.Driver, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("storage.postgres_dsn is required")
	}
	logger.Debug("using PostgreSQL storage")
	return postgres.NewDriver(ctx, cfg.PostgresDSN)
}

func openBadger(_ context.Context, cfg config.StorageConfig, dir string, logger *slog.Logger) (storage.Driver, error) {
	path := cfg.BadgerPath
	if path == "" {
		path = filepath.Join(dir, "badger")
	}
	bc := badger.DefaultConfig(path)
	bc.Logger = logger
	logger.Debug("using Badger storage", "path", path)
	return badger.NewDriver(bc)
}

func openMemory(context.Context, config.StorageConfig, string, *slog.Logger) (storage.Driver, error) {
	return inmemory.NewDriver(), nil
}
