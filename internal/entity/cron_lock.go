package entity

import "time"

// CronLock is one named mutual-exclusion lock row. A lock is held iff
// LockedUntil is in the future; rows are upserted, never deleted.
type CronLock struct {
	LockName    string    `json:"lock_name"`
	LockedUntil time.Time `json:"locked_until"`
	LockedBy    string    `json:"locked_by"`
	LockedAt    time.Time `json:"locked_at"`
}

// Held reports whether the lock is currently held at the given instant.
func (l *CronLock) Held(now time.Time) bool {
	return l.LockedUntil.After(now)
}
