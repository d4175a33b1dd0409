package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schemaVersion returns the last migration applied to the row store, as
// recorded in PRAGMA user_version.
func schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// pendingMigrations returns the migrations newer than version, oldest first.
func pendingMigrations(version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// migrate applies every pending migration, each in its own transaction.
func migrate(conn *sql.DB) error {
	version, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	for _, m := range pendingMigrations(version) {
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	log.Printf("Row store: applying migration %d (%s)", m.Version, m.Description)

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if err := m.Up(tx); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", m.Version, err)
	}

	// modernc/sqlite does not apply user_version inside a transaction.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("recording schema version %d: %w", m.Version, err)
	}
	return nil
}
