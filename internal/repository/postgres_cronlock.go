package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type postgresCronLockStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresCronLockStore(pool *pgxpool.Pool, logger *slog.Logger) CronLockStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresCronLockStore{pool: pool, logger: logger}
}

func (s *postgresCronLockStore) Acquire(ctx context.Context, name string, ttl time.Duration, holder string) (bool, error) {
	// Single conditional upsert: the DO UPDATE only fires when the existing
	// row has expired, so there is no read-then-write window.
	const q = `
		WITH upsert AS (
			INSERT INTO cron_locks (lock_name, locked_until, locked_by, locked_at)
			VALUES ($1, now() + $2, $3, now())
			ON CONFLICT (lock_name) DO UPDATE
				SET locked_until = EXCLUDED.locked_until,
				    locked_by    = EXCLUDED.locked_by,
				    locked_at    = now()
			WHERE cron_locks.locked_until < now()
			RETURNING 1
		)
		SELECT COUNT(*)::int AS acquired FROM upsert`
	var acquired int
	if err := s.pool.QueryRow(ctx, q, name, ttl, holder).Scan(&acquired); err != nil {
		s.logger.Error("cronlock.acquire failed", "lock", name, "error", err)
		return false, common.WrapError(err, "acquire cron lock")
	}
	ok := acquired == 1
	if ok {
		s.logger.Info("cronlock.acquire ok", "lock", name, "holder", holder, "ttl", ttl)
	} else {
		s.logger.Info("cronlock.acquire held elsewhere", "lock", name, "holder", holder)
	}
	return ok, nil
}

func (s *postgresCronLockStore) Release(ctx context.Context, name, holder string) error {
	const q = `
		UPDATE cron_locks
		SET locked_until = now(), locked_by = $2, locked_at = now()
		WHERE lock_name = $1`
	if _, err := s.pool.Exec(ctx, q, name, holder); err != nil {
		s.logger.Error("cronlock.release failed", "lock", name, "error", err)
		return common.WrapError(err, "release cron lock")
	}
	s.logger.Info("cronlock.release ok", "lock", name, "holder", holder)
	return nil
}

func (s *postgresCronLockStore) Get(ctx context.Context, name string) (*entity.CronLock, error) {
	var l entity.CronLock
	err := s.pool.QueryRow(ctx,
		`SELECT lock_name, locked_until, locked_by, locked_at FROM cron_locks WHERE lock_name = $1`, name).
		Scan(&l.LockName, &l.LockedUntil, &l.LockedBy, &l.LockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "get cron lock")
	}
	return &l, nil
}
