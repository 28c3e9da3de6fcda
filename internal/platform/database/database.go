package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"triage-assistant/internal/observability"
)

// OpenPostgres connects with a short retry loop; the database container
// often starts after the service.
func OpenPostgres(connStr string, attempts int) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	for i := 0; i < attempts; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			observability.Logger().Info("connected to database")
			return db, nil
		}
		if db != nil {
			db.Close()
		}
		observability.Logger().Info("waiting for database", "attempt", i+1, "attempts", attempts, "error", err)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connecting to postgres: %w", err)
}

// Migrate applies every pending migration from sourceURL, e.g. "file://migrations".
func Migrate(sourceURL, connStr string) error {
	m, err := migrate.New(sourceURL, connStr)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS triage_runs (
    id TEXT PRIMARY KEY,
    note TEXT NOT NULL,
    vitals TEXT,
    has_image BOOLEAN NOT NULL DEFAULT 0,
    guard TEXT NOT NULL,
    research TEXT NOT NULL,
    doctor TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_sessions (
    id TEXT PRIMARY KEY,
    persona TEXT NOT NULL,
    messages TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

// OpenSQLite opens (or creates) the file and makes sure the schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps sqlite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return db, nil
}
