package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

// newTestStore opens a fresh SQLite store in a per-test directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db, logger)
}
