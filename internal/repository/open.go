package repository

import (
	"context"
	"log/slog"

	"github.com/keihibook/keihibook/internal/common"
)

// OpenStore opens the configured backend, applies its schema, and returns
// the wired stores plus a close function. DSN wins when both are set.
func OpenStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN != "" {
		pool, err := Open(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPostgresStore(pool, logger), func() { Close(pool, logger) }, nil
	}

	db, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewSQLiteStore(db, logger), func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close sqlite", "error", err)
		}
	}, nil
}
