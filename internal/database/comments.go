package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertComments inserts a batch of comments in a single transaction.
func (db *DB) InsertComments(ctx context.Context, comments []CommentRow) error {
	if len(comments) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO comments
		(comment_id, article_id, comment_start_index, comment_end_index, date, content, author, row_number_in_article)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range comments {
		if _, err := stmt.ExecContext(ctx,
			c.CommentID, c.ArticleID, c.StartIndex, c.EndIndex, c.Date, c.Content, c.Author, c.RowNumberInArticle,
		); err != nil {
			return fmt.Errorf("inserting comment %s: %w", c.CommentID, err)
		}
	}

	return tx.Commit()
}

// GetArticleComments returns the comments of an article ordered by position.
func (db *DB) GetArticleComments(ctx context.Context, articleID string) ([]CommentRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT row_id, comment_id, article_id, comment_start_index, comment_end_index, date, content, author, row_number_in_article
		FROM comments WHERE article_id = ?
		ORDER BY comment_start_index, row_id`, articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommentRow
	for rows.Next() {
		var c CommentRow
		var date, author sql.NullString
		if err := rows.Scan(&c.RowID, &c.CommentID, &c.ArticleID, &c.StartIndex, &c.EndIndex,
			&date, &c.Content, &author, &c.RowNumberInArticle); err != nil {
			return nil, err
		}
		c.Date = date.String
		c.Author = author.String
		out = append(out, c)
	}
	return out, rows.Err()
}
