package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS article_rows (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id TEXT NOT NULL,
    title TEXT NOT NULL,
    tags TEXT,
    date TEXT,
    content_indexes TEXT NOT NULL,
    row_content TEXT NOT NULL,
    author TEXT,
    row_number_in_article INTEGER NOT NULL,
    row_number_to_display INTEGER NOT NULL,
    description TEXT
);

CREATE TABLE IF NOT EXISTS comments (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    comment_id TEXT UNIQUE NOT NULL,
    article_id TEXT NOT NULL,
    comment_start_index INTEGER NOT NULL,
    comment_end_index INTEGER NOT NULL,
    date TEXT,
    content TEXT NOT NULL,
    author TEXT,
    row_number_in_article INTEGER
);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id TEXT NOT NULL,
    title TEXT NOT NULL,
    row_count INTEGER DEFAULT 0,
    comment_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_article_rows_article ON article_rows(article_id, row_number_in_article);
CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
