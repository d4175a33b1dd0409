package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobiSchelling/textlib/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS article_rows (
    row_id BIGSERIAL PRIMARY KEY,
    article_id TEXT NOT NULL,
    title TEXT NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}',
    date DATE,
    content_indexes INTEGER[] NOT NULL,
    row_content TEXT NOT NULL,
    author TEXT,
    row_number_in_article INTEGER NOT NULL,
    row_number_to_display INTEGER NOT NULL,
    description TEXT
);

CREATE TABLE IF NOT EXISTS comments (
    row_id BIGSERIAL PRIMARY KEY,
    comment_id TEXT UNIQUE NOT NULL,
    article_id TEXT NOT NULL,
    comment_start_index INTEGER NOT NULL,
    comment_end_index INTEGER NOT NULL,
    date DATE,
    content TEXT NOT NULL,
    author TEXT,
    row_number_in_article INTEGER
);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id BIGSERIAL PRIMARY KEY,
    article_id TEXT NOT NULL,
    title TEXT NOT NULL,
    row_count INTEGER DEFAULT 0,
    comment_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_article_rows_article ON article_rows(article_id, row_number_in_article);
CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_id);
`

// Store keeps article rows and comments in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// InsertArticleRows inserts all rows of one article in a single batch.
func (s *Store) InsertArticleRows(ctx context.Context, rows []database.ArticleRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		indexes := r.ContentIndexes
		if indexes == nil {
			indexes = []int{}
		}
		batch.Queue(
			`INSERT INTO article_rows
			(article_id, title, tags, date, content_indexes, row_content, author,
			 row_number_in_article, row_number_to_display, description)
			VALUES ($1, $2, $3, NULLIF($4, '')::date, $5, $6, $7, $8, $9, $10)`,
			r.ArticleID, r.Title, tags, r.Date, indexes, r.RowContent, r.Author,
			r.RowNumberInArticle, r.RowNumberToDisplay, r.Description,
		)
	}
	return s.sendBatch(ctx, batch)
}

// GetArticleRows returns the rows of an article with
// fromRow < row_number_in_article, limited to numRows rows when numRows > 0.
func (s *Store) GetArticleRows(ctx context.Context, articleID string, fromRow, numRows int) ([]database.ArticleRow, error) {
	query := `SELECT row_id, article_id, title, tags, COALESCE(date::text, ''), content_indexes, row_content,
		COALESCE(author, ''), row_number_in_article, row_number_to_display, description
		FROM article_rows WHERE article_id = $1 AND $2 < row_number_in_article`
	args := []any{articleID, fromRow}
	if numRows > 0 {
		query += " AND row_number_in_article <= $3"
		args = append(args, fromRow+numRows)
	}
	query += " ORDER BY row_number_in_article"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.ArticleRow
	for rows.Next() {
		var r database.ArticleRow
		if err := rows.Scan(&r.RowID, &r.ArticleID, &r.Title, &r.Tags, &r.Date, &r.ContentIndexes,
			&r.RowContent, &r.Author, &r.RowNumberInArticle, &r.RowNumberToDisplay, &r.Description); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertComments inserts a batch of comments in a single transaction.
func (s *Store) InsertComments(ctx context.Context, comments []database.CommentRow) error {
	if len(comments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range comments {
		batch.Queue(
			`INSERT INTO comments
			(comment_id, article_id, comment_start_index, comment_end_index, date, content, author, row_number_in_article)
			VALUES ($1, $2, $3, $4, NULLIF($5, '')::date, $6, $7, $8)`,
			c.CommentID, c.ArticleID, c.StartIndex, c.EndIndex, c.Date, c.Content, c.Author, c.RowNumberInArticle,
		)
	}
	return s.sendBatch(ctx, batch)
}

// GetArticleComments returns the comments of an article ordered by position.
func (s *Store) GetArticleComments(ctx context.Context, articleID string) ([]database.CommentRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_id, comment_id, article_id, comment_start_index, comment_end_index,
		COALESCE(date::text, ''), content, COALESCE(author, ''), row_number_in_article
		FROM comments WHERE article_id = $1
		ORDER BY comment_start_index, row_id`, articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.CommentRow
	for rows.Next() {
		var c database.CommentRow
		if err := rows.Scan(&c.RowID, &c.CommentID, &c.ArticleID, &c.StartIndex, &c.EndIndex,
			&c.Date, &c.Content, &c.Author, &c.RowNumberInArticle); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertIngestRun records a finished import and returns its ID.
func (s *Store) InsertIngestRun(ctx context.Context, run database.IngestRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingest_runs (article_id, title, row_count, comment_count, skipped_count)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		run.ArticleID, run.Title, run.RowCount, run.CommentCount, run.SkippedCount,
	).Scan(&id)
	return id, err
}

// GetStats returns aggregate statistics.
func (s *Store) GetStats(ctx context.Context) (*database.Stats, error) {
	st := &database.Stats{}
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(DISTINCT article_id) FROM article_rows", &st.Articles},
		{"SELECT COUNT(*) FROM article_rows", &st.Rows},
		{"SELECT COUNT(*) FROM comments", &st.Comments},
		{"SELECT COUNT(*) FROM ingest_runs", &st.IngestRuns},
	}
	for _, q := range queries {
		if err := s.pool.QueryRow(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var r database.IngestRun
	var created string
	err := s.pool.QueryRow(ctx,
		`SELECT id, article_id, title, row_count, comment_count, skipped_count, created_at::text
		FROM ingest_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &r.ArticleID, &r.Title, &r.RowCount, &r.CommentCount, &r.SkippedCount, &created)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		r.CreatedAt = &created
		st.LastIngest = &r
	}
	return st, nil
}

// sendBatch runs a batch inside a transaction so a failing row rolls back
// the whole batch.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
