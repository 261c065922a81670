package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type sqliteCronLockStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteCronLockStore(db *sql.DB, logger *slog.Logger) CronLockStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteCronLockStore{db: db, logger: logger}
}

func (s *sqliteCronLockStore) Acquire(ctx context.Context, name string, ttl time.Duration, holder string) (bool, error) {
	now := time.Now()
	// One statement, one writer: the DO UPDATE fires only for an expired
	// row, so a held lock yields zero affected rows and no side effects.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_locks (lock_name, locked_until, locked_by, locked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (lock_name) DO UPDATE
			SET locked_until = excluded.locked_until,
			    locked_by    = excluded.locked_by,
			    locked_at    = excluded.locked_at
		WHERE cron_locks.locked_until < ?`,
		name, now.Add(ttl).UnixNano(), holder, now.UnixNano(), now.UnixNano())
	if err != nil {
		s.logger.Error("cronlock.acquire failed", "lock", name, "error", err)
		return false, common.WrapError(err, "acquire cron lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.WrapError(err, "acquire cron lock")
	}
	ok := n == 1
	if ok {
		s.logger.Info("cronlock.acquire ok", "lock", name, "holder", holder, "ttl", ttl)
	} else {
		s.logger.Info("cronlock.acquire held elsewhere", "lock", name, "holder", holder)
	}
	return ok, nil
}

func (s *sqliteCronLockStore) Release(ctx context.Context, name, holder string) error {
	now := time.Now().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE cron_locks
		SET locked_until = ?, locked_by = ?, locked_at = ?
		WHERE lock_name = ?`,
		now, holder, now, name); err != nil {
		s.logger.Error("cronlock.release failed", "lock", name, "error", err)
		return common.WrapError(err, "release cron lock")
	}
	s.logger.Info("cronlock.release ok", "lock", name, "holder", holder)
	return nil
}

func (s *sqliteCronLockStore) Get(ctx context.Context, name string) (*entity.CronLock, error) {
	var l entity.CronLock
	var until, at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT lock_name, locked_until, locked_by, locked_at
		FROM cron_locks WHERE lock_name = ?`, name).
		Scan(&l.LockName, &until, &l.LockedBy, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "get cron lock")
	}
	l.LockedUntil = nanosToTime(until)
	l.LockedAt = nanosToTime(at)
	return &l, nil
}
