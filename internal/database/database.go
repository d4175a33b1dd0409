package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the SQLite row store. It keeps one row per display row of every
// ingested article, the comments anchored to those rows and a log of
// ingest runs.
type DB struct {
	conn *sql.DB
	path string
}

var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Open opens the row store at dbPath, creating the file and its directory
// when missing, and brings the schema up to date.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating row store directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening row store %s: %w", dbPath, err)
	}
	for _, pragma := range connPragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating row store: %w", err)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the row store.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the location of the row store file.
func (db *DB) Path() string {
	return db.path
}
