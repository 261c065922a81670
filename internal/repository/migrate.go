package repository

import (
	"context"
	_ "embed"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keihibook/keihibook/internal/common"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Migrate applies the embedded schema. All statements are idempotent, so the
// daemon runs this unconditionally at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	logger.Info("applying database schema")
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		logger.Error("schema migration failed", "error", err)
		return common.WrapError(err, "apply schema")
	}
	logger.Info("database schema up to date")
	return nil
}
