package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertArticleRows inserts all rows of one article in a single transaction.
func (db *DB) InsertArticleRows(ctx context.Context, rows []ArticleRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO article_rows
		(article_id, title, tags, date, content_indexes, row_content, author,
		 row_number_in_article, row_number_to_display, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		tags, err := encodeJSON(r.Tags, []string{})
		if err != nil {
			return err
		}
		indexes, err := encodeJSON(r.ContentIndexes, []int{})
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ArticleID, r.Title, tags, r.Date, indexes, r.RowContent, r.Author,
			r.RowNumberInArticle, r.RowNumberToDisplay, r.Description,
		); err != nil {
			return fmt.Errorf("inserting row %d of %s: %w", r.RowNumberInArticle, r.ArticleID, err)
		}
	}

	return tx.Commit()
}

// GetArticleRows returns the rows of an article with
// fromRow < row_number_in_article, limited to numRows rows when numRows > 0.
func (db *DB) GetArticleRows(ctx context.Context, articleID string, fromRow, numRows int) ([]ArticleRow, error) {
	query := `SELECT row_id, article_id, title, tags, date, content_indexes, row_content, author,
		row_number_in_article, row_number_to_display, description
		FROM article_rows WHERE article_id = ? AND ? < row_number_in_article`
	args := []any{articleID, fromRow}
	if numRows > 0 {
		query += " AND row_number_in_article <= ?"
		args = append(args, fromRow+numRows)
	}
	query += " ORDER BY row_number_in_article"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticleRows(rows)
}

func scanArticleRows(rows *sql.Rows) ([]ArticleRow, error) {
	var out []ArticleRow
	for rows.Next() {
		var r ArticleRow
		var tags, indexes string
		var date, author sql.NullString
		if err := rows.Scan(&r.RowID, &r.ArticleID, &r.Title, &tags, &date, &indexes,
			&r.RowContent, &author, &r.RowNumberInArticle, &r.RowNumberToDisplay, &r.Description); err != nil {
			return nil, err
		}
		r.Date = date.String
		r.Author = author.String
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			r.Tags = nil
		}
		if err := json.Unmarshal([]byte(indexes), &r.ContentIndexes); err != nil {
			return nil, fmt.Errorf("decoding content indexes of row %d: %w", r.RowID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// encodeJSON marshals v, substituting empty when v is a nil slice.
func encodeJSON[T any](v []T, empty []T) (string, error) {
	if v == nil {
		v = empty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
