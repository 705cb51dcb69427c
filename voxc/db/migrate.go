package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the journal schema up to date.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	// Set goose dialect to SQLite (required for proper migration execution)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	return nil
}

// Open connects to the embedded database and applies migrations.
func Open(path string, logger zerolog.Logger) (*sql.DB, error) {
	conn, err := ConnectToDB(path, logger)
	if err != nil {
		return nil, err
	}

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Debug().Str("path", path).Msg("journal schema up to date")
	return conn, nil
}
