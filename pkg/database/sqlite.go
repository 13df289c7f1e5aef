// Package database opens the marketplace SQLite database and keeps its
// schema current.
package database

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/esdx-scion/esdx/pkg/database/migrations"
	"github.com/esdx-scion/esdx/pkg/metrics"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteDB represents a SQLite database.
type SQLiteDB struct {
	URI string
	DB  *sql.DB
	Log zerolog.Logger
}

// Open opens a SQLite database and applies any pending migrations.
func Open(uri string) (*SQLiteDB, error) {
	log := logger.With().
		Str("component", "db").
		Logger()

	sqlDB, err := otelsql.Open("sqlite3", uri, otelsql.WithAttributes(metrics.BaseAttrs...))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %s", err)
	}
	if err := otelsql.RegisterDBStatsMetrics(sqlDB, otelsql.WithAttributes(metrics.BaseAttrs...)); err != nil {
		return nil, fmt.Errorf("registering dbstats: %s", err)
	}

	database := &SQLiteDB{
		URI: uri,
		DB:  sqlDB,
		Log: log,
	}
	if err := database.executeMigration(); err != nil {
		return nil, fmt.Errorf("initializing db connection: %s", err)
	}
	return database, nil
}

// Close closes the database.
func (db *SQLiteDB) Close() error {
	return db.DB.Close()
}

// executeMigration runs the pending migrations on the already-open pool.
// Migrating through a separate connection would tear down shared-cache
// in-memory databases as soon as that connection closes, so the migration
// instance is never closed; its database driver is db.DB itself.
func (db *SQLiteDB) executeMigration() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating source driver: %s", err)
	}
	driver, err := migratesqlite3.WithInstance(db.DB, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			db.Log.Error().Err(err).Msg("closing migration source")
		}
	}()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %s", err)
	}

	version, dirty, err := m.Version()
	db.Log.Info().
		Uint("dbVersion", version).
		Bool("dirty", dirty).
		Err(err).
		Msg("database migration executed")

	return nil
}
