package store

import (
	"context"
	"testing"
)

// NewTestStore creates a fresh in-memory SQLite store with the schema
// applied. An in-memory database exists per connection, so the pool is
// pinned to a single one.
func NewTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return s
}
