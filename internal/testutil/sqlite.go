// Package testutil holds helpers shared by package tests.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/hammerspace/internal/client/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// NewDB opens an in-memory SQLite database with all client migrations
// applied. A single connection is used so every query sees the same memory
// database.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	goose.SetLogger(goose.NopLogger())
	require.NoError(t, goose.Up(db, "."))

	return db
}
