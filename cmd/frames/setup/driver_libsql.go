//go:build libsql

package setup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/frames/pkg/config"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/libsql"
)

func init() {
	openers["libsql"] = openLibSQL
}

func openLibSQL(ctx context.Context, cfg config.StorageConfig, _ string, logger *slog.Logger) (storage.Driver, error) {
	if cfg.LibSQLPath == "" {
		return nil, errors.New("storage.libsql_path is required")
	}
	logger.Debug("using libSQL storage", "path", cfg.LibSQLPath)
	return libsql.NewDriver(ctx, cfg.LibSQLPath)
}
