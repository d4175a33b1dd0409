package index

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document ID does not exist.
var ErrNotFound = errors.New("document not found")

var md = goldmark.New()

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    author TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    content_indexes TEXT NOT NULL DEFAULT '[]',
    search_title TEXT NOT NULL DEFAULT '',
    search_content TEXT NOT NULL DEFAULT '',
    search_tags TEXT NOT NULL DEFAULT '',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
    search_title,
    search_content,
    search_tags,
    content='articles',
    content_rowid='seq',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS articles_ai AFTER INSERT ON articles BEGIN
  INSERT INTO articles_fts(rowid, search_title, search_content, search_tags)
  VALUES (new.seq, new.search_title, new.search_content, new.search_tags);
END;
CREATE TRIGGER IF NOT EXISTS articles_ad AFTER DELETE ON articles BEGIN
  INSERT INTO articles_fts(articles_fts, rowid, search_title, search_content, search_tags)
  VALUES ('delete', old.seq, old.search_title, old.search_content, old.search_tags);
END;
CREATE TRIGGER IF NOT EXISTS articles_au AFTER UPDATE ON articles BEGIN
  INSERT INTO articles_fts(articles_fts, rowid, search_title, search_content, search_tags)
  VALUES ('delete', old.seq, old.search_title, old.search_content, old.search_tags);
  INSERT INTO articles_fts(rowid, search_title, search_content, search_tags)
  VALUES (new.seq, new.search_title, new.search_content, new.search_tags);
END;

CREATE TABLE IF NOT EXISTS comments (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    article_id TEXT NOT NULL,
    start_index INTEGER NOT NULL,
    end_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    comment_html TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL DEFAULT '',
    row_number INTEGER NOT NULL DEFAULT 0,
    search_content TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_id, start_index);

CREATE VIRTUAL TABLE IF NOT EXISTS comments_fts USING fts5(
    search_content,
    content='comments',
    content_rowid='seq',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS comments_ai AFTER INSERT ON comments BEGIN
  INSERT INTO comments_fts(rowid, search_content) VALUES (new.seq, new.search_content);
END;
CREATE TRIGGER IF NOT EXISTS comments_ad AFTER DELETE ON comments BEGIN
  INSERT INTO comments_fts(comments_fts, rowid, search_content) VALUES ('delete', old.seq, old.search_content);
END;
CREATE TRIGGER IF NOT EXISTS comments_au AFTER UPDATE ON comments BEGIN
  INSERT INTO comments_fts(comments_fts, rowid, search_content) VALUES ('delete', old.seq, old.search_content);
  INSERT INTO comments_fts(rowid, search_content) VALUES (new.seq, new.search_content);
END;
`

// Article is a searchable article document.
type Article struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	Author         string   `json:"author"`
	Date           string   `json:"date"`
	Description    string   `json:"description,omitempty"`
	ContentIndexes []int    `json:"content_indexes"`
}

// Comment is a searchable comment anchored to a token range of an article.
type Comment struct {
	ID         string `json:"id"`
	ArticleID  string `json:"article_id"`
	StartIndex int    `json:"comment_start_index"`
	EndIndex   int    `json:"comment_end_index"`
	Content    string `json:"content"`
	HTML       string `json:"comment_html"`
	Author     string `json:"author"`
	Date       string `json:"date"`
	Row        int    `json:"row_number"`
}

// Index stores article and comment documents with full-text search.
type Index struct {
	conn *sql.DB
}

// Open creates or opens the index database at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

// Close closes the index.
func (ix *Index) Close() error {
	return ix.conn.Close()
}

// WordIndexes returns 0..n-1 for the whitespace-separated words of content.
func WordIndexes(content string) []int {
	n := len(strings.Fields(content))
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// IndexArticle stores a new article and returns its generated ID. Content
// indexes are derived from the content when the article carries none.
func (ix *Index) IndexArticle(ctx context.Context, a Article) (string, error) {
	if a.ContentIndexes == nil {
		a.ContentIndexes = WordIndexes(a.Content)
	}
	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return "", err
	}
	indexes, err := json.Marshal(a.ContentIndexes)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = ix.conn.ExecContext(ctx,
		`INSERT INTO articles (id, title, content, tags, author, date, description, content_indexes,
			search_title, search_content, search_tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.Title, a.Content, string(tags), a.Author, a.Date, a.Description, string(indexes),
		searchText(a.Title), searchText(a.Content), searchText(strings.Join(a.Tags, " ")),
	)
	if err != nil {
		return "", fmt.Errorf("indexing article: %w", err)
	}
	return id, nil
}

const articleColumns = `a.id, a.title, a.content, a.tags, a.author, a.date, a.description, a.content_indexes`

// GetArticle returns the article with the given ID.
func (ix *Index) GetArticle(ctx context.Context, id string) (*Article, error) {
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, ErrNotFound
	}
	return &articles[0], nil
}

// UpdateArticleContent replaces the content of an article and recomputes
// its content indexes.
func (ix *Index) UpdateArticleContent(ctx context.Context, id, content string) error {
	indexes, err := json.Marshal(WordIndexes(content))
	if err != nil {
		return err
	}
	result, err := ix.conn.ExecContext(ctx,
		`UPDATE articles SET content = ?, content_indexes = ?, search_content = ? WHERE id = ?`,
		content, string(indexes), searchText(content), id,
	)
	if err != nil {
		return fmt.Errorf("updating article %s: %w", id, err)
	}
	return requireAffected(result)
}

// DeleteArticle removes an article together with its comments.
func (ix *Index) DeleteArticle(ctx context.Context, id string) error {
	tx, err := ix.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting article %s: %w", id, err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE article_id = ?`, id); err != nil {
		return fmt.Errorf("deleting comments of %s: %w", id, err)
	}
	return tx.Commit()
}

// SearchArticles returns articles matching any word of query, best first.
// A size of zero or less returns every match after from.
func (ix *Index) SearchArticles(ctx context.Context, query string, from, size int) ([]Article, error) {
	match := matchExpr(query)
	if match == "" {
		return []Article{}, nil
	}
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles_fts
		JOIN articles a ON a.seq = articles_fts.rowid
		WHERE articles_fts MATCH ?
		ORDER BY bm25(articles_fts)
		LIMIT ? OFFSET ?`,
		match, limit(size), max(from, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// AllArticles returns every article in insertion order.
func (ix *Index) AllArticles(ctx context.Context) ([]Article, error) {
	rows, err := ix.conn.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles a ORDER BY a.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// Authors returns the distinct non-empty article authors, sorted.
func (ix *Index) Authors(ctx context.Context) ([]string, error) {
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT DISTINCT author FROM articles WHERE author != '' ORDER BY author`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	authors := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// ArticlesByAuthor returns a page of articles written by author.
func (ix *Index) ArticlesByAuthor(ctx context.Context, author string, from, size int) ([]Article, error) {
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.author = ?
		ORDER BY a.seq LIMIT ? OFFSET ?`,
		author, limit(size), max(from, 0),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// IndexComment stores a comment, rendering its Markdown content to HTML,
// and returns the generated ID.
func (ix *Index) IndexComment(ctx context.Context, c Comment) (string, error) {
	html, err := renderMarkdown(c.Content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = ix.conn.ExecContext(ctx,
		`INSERT INTO comments (id, article_id, start_index, end_index, content, comment_html, author, date, row_number, search_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.ArticleID, c.StartIndex, c.EndIndex, c.Content, html, c.Author, c.Date, c.Row, searchText(c.Content),
	)
	if err != nil {
		return "", fmt.Errorf("indexing comment: %w", err)
	}
	return id, nil
}

const commentColumns = `c.id, c.article_id, c.start_index, c.end_index, c.content, c.comment_html, c.author, c.date, c.row_number`

// GetComment returns the comment with the given ID.
func (ix *Index) GetComment(ctx context.Context, id string) (*Comment, error) {
	rows, err := ix.conn.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments c WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments, err := scanComments(rows)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, ErrNotFound
	}
	return &comments[0], nil
}

// UpdateComment replaces the content of a comment.
func (ix *Index) UpdateComment(ctx context.Context, id, content string) error {
	html, err := renderMarkdown(content)
	if err != nil {
		return err
	}
	result, err := ix.conn.ExecContext(ctx,
		`UPDATE comments SET content = ?, comment_html = ?, search_content = ? WHERE id = ?`,
		content, html, searchText(content), id)
	if err != nil {
		return fmt.Errorf("updating comment %s: %w", id, err)
	}
	return requireAffected(result)
}

// DeleteComment removes a comment.
func (ix *Index) DeleteComment(ctx context.Context, id string) error {
	result, err := ix.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting comment %s: %w", id, err)
	}
	return requireAffected(result)
}

// SearchComments returns comments matching any word of query, best first.
func (ix *Index) SearchComments(ctx context.Context, query string, from, size int) ([]Comment, error) {
	match := matchExpr(query)
	if match == "" {
		return []Comment{}, nil
	}
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments_fts
		JOIN comments c ON c.seq = comments_fts.rowid
		WHERE comments_fts MATCH ?
		ORDER BY bm25(comments_fts)
		LIMIT ? OFFSET ?`,
		match, limit(size), max(from, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("searching comments: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

// CommentsForArticle returns the comments of an article ordered by position.
func (ix *Index) CommentsForArticle(ctx context.Context, articleID string) ([]Comment, error) {
	rows, err := ix.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments c WHERE c.article_id = ?
		ORDER BY c.start_index, c.seq`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// matchExpr turns free text into an FTS5 expression matching any of its
// stemmed words.
func matchExpr(query string) string {
	words := searchTerms(query)
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " OR ")
}

func limit(size int) int {
	if size <= 0 {
		return -1
	}
	return size
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func renderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("rendering comment: %w", err)
	}
	return buf.String(), nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	articles := []Article{}
	for rows.Next() {
		var a Article
		var tags, indexes string
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &tags, &a.Author, &a.Date,
			&a.Description, &indexes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			a.Tags = []string{}
		}
		if err := json.Unmarshal([]byte(indexes), &a.ContentIndexes); err != nil {
			return nil, fmt.Errorf("decoding content indexes of %s: %w", a.ID, err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func scanComments(rows *sql.Rows) ([]Comment, error) {
	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.StartIndex, &c.EndIndex, &c.Content,
			&c.HTML, &c.Author, &c.Date, &c.Row); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
