// Package dbtest provides an in-memory SQLite store with the production schema
// for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nonsonwune/examresults/config"
	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/migrations"
)

// New opens a fresh in-memory database, migrates it and closes it when the
// test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite3", Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.InitSchema(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// Count returns the number of rows matched by a COUNT(*) query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
