// Package testutil provides an in-memory database with the application
// schema for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"apotek/m/internal/database"
	"apotek/m/internal/migrations"
)

const memoryDSN = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"

// NewDB opens a fresh migrated SQLite database that lives for the test.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite", memoryDSN, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
