package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esdx-scion/esdx/pkg/database"
	"github.com/esdx-scion/esdx/tests"
)

func TestOpenMigratesSchema(t *testing.T) {
	t.Parallel()

	db, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// the schema must be visible through the returned pool, including for
	// in-memory databases that live only as long as their connections
	rows, err := db.DB.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables[name] = true
	}
	require.NoError(t, rows.Err())
	for _, name := range []string{"ases", "broker", "offers", "purchase_orders", "contracts"} {
		require.True(t, tables[name], "missing table %s", name)
	}

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(1) FROM broker`).Scan(&count))
	require.Zero(t, count)
}

func TestOpenIdempotentMigration(t *testing.T) {
	t.Parallel()

	uri := tests.Sqlite3URL()
	db, err := database.Open(uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// opening the same database again finds the schema current
	again, err := database.Open(uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })

	var name string
	err = again.DB.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'offers'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "offers", name)
}
