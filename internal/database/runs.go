package database

import (
	"context"
	"database/sql"
)

// InsertIngestRun records a finished import and returns its ID.
func (db *DB) InsertIngestRun(ctx context.Context, run IngestRun) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO ingest_runs (article_id, title, row_count, comment_count, skipped_count)
		VALUES (?, ?, ?, ?, ?)`,
		run.ArticleID, run.Title, run.RowCount, run.CommentCount, run.SkippedCount,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLastIngestRun returns the most recent import, or nil when there is none.
func (db *DB) GetLastIngestRun(ctx context.Context) (*IngestRun, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, article_id, title, row_count, comment_count, skipped_count, created_at
		FROM ingest_runs ORDER BY id DESC LIMIT 1`,
	)
	var r IngestRun
	if err := row.Scan(&r.ID, &r.ArticleID, &r.Title, &r.RowCount, &r.CommentCount,
		&r.SkippedCount, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(DISTINCT article_id) FROM article_rows", &s.Articles},
		{"SELECT COUNT(*) FROM article_rows", &s.Rows},
		{"SELECT COUNT(*) FROM comments", &s.Comments},
		{"SELECT COUNT(*) FROM ingest_runs", &s.IngestRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	last, err := db.GetLastIngestRun(ctx)
	if err != nil {
		return nil, err
	}
	s.LastIngest = last
	return s, nil
}
