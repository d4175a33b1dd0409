package database

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(n int) *int { return &n }

func sampleRows(articleID string, n int) []ArticleRow {
	rows := make([]ArticleRow, n)
	offset := 0
	for i := range rows {
		rows[i] = ArticleRow{
			ArticleID:          articleID,
			Title:              "Sample",
			Tags:               []string{"poetry", "annotated"},
			Date:               "2026-02-06",
			ContentIndexes:     []int{offset, offset + 1},
			RowContent:         "two words",
			Author:             "Pushkin",
			RowNumberInArticle: i + 1,
			RowNumberToDisplay: (i + 1) * 10,
		}
		offset += 2
	}
	return rows
}

func TestInsertAndGetArticleRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.InsertArticleRows(ctx, sampleRows("a1", 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.InsertArticleRows(ctx, sampleRows("a2", 2))

	rows, err := db.GetArticleRows(ctx, "a1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].RowNumberToDisplay != 20 {
		t.Errorf("expected display row 20, got %d", rows[1].RowNumberToDisplay)
	}
	if len(rows[2].ContentIndexes) != 2 || rows[2].ContentIndexes[0] != 4 {
		t.Errorf("unexpected content indexes %v", rows[2].ContentIndexes)
	}
	if len(rows[0].Tags) != 2 || rows[0].Tags[0] != "poetry" {
		t.Errorf("unexpected tags %v", rows[0].Tags)
	}
}

func TestGetArticleRowsPagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.InsertArticleRows(ctx, sampleRows("a1", 10))

	tests := []struct {
		from, num   int
		first, want int
	}{
		{0, 0, 1, 10},
		{0, 3, 1, 3},
		{3, 3, 4, 3},
		{8, 5, 9, 2},
		{10, 0, 0, 0},
	}
	for _, tt := range tests {
		rows, err := db.GetArticleRows(ctx, "a1", tt.from, tt.num)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != tt.want {
			t.Errorf("from=%d num=%d: expected %d rows, got %d", tt.from, tt.num, tt.want, len(rows))
			continue
		}
		if tt.want > 0 && rows[0].RowNumberInArticle != tt.first {
			t.Errorf("from=%d num=%d: expected first row %d, got %d", tt.from, tt.num, tt.first, rows[0].RowNumberInArticle)
		}
	}
}

func TestInsertArticleRowsNilSlices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	row := ArticleRow{ArticleID: "a", Title: "Empty row", RowNumberInArticle: 1, RowNumberToDisplay: 1}
	if err := db.InsertArticleRows(ctx, []ArticleRow{row}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := db.GetArticleRows(ctx, "a", 0, 0)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].ContentIndexes == nil || len(rows[0].ContentIndexes) != 0 {
		t.Errorf("expected empty content indexes, got %v", rows[0].ContentIndexes)
	}
}

func TestCommentsLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	comments := []CommentRow{
		{CommentID: "c2", ArticleID: "a1", StartIndex: 5, EndIndex: 6, Date: "2026-02-06", Content: "later", Author: "Unknown", RowNumberInArticle: intPtr(2)},
		{CommentID: "c1", ArticleID: "a1", StartIndex: 1, EndIndex: 1, Date: "2026-02-06", Content: "first", Author: "Unknown", RowNumberInArticle: intPtr(1)},
		{CommentID: "c3", ArticleID: "a2", StartIndex: 0, EndIndex: 0, Content: "other"},
	}
	if err := db.InsertComments(ctx, comments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetArticleComments(ctx, "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(got))
	}
	if got[0].CommentID != "c1" || got[1].CommentID != "c2" {
		t.Errorf("expected comments ordered by start index, got %s, %s", got[0].CommentID, got[1].CommentID)
	}
	if got[1].RowNumberInArticle == nil || *got[1].RowNumberInArticle != 2 {
		t.Error("expected row number 2 on second comment")
	}

	// Duplicate comment IDs roll back the whole batch.
	err = db.InsertComments(ctx, []CommentRow{
		{CommentID: "c4", ArticleID: "a1", Content: "new"},
		{CommentID: "c1", ArticleID: "a1", Content: "dup"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate comment id")
	}
	got, _ = db.GetArticleComments(ctx, "a1")
	if len(got) != 2 {
		t.Errorf("expected batch rollback, got %d comments", len(got))
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Articles != 0 || stats.LastIngest != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	db.InsertArticleRows(ctx, sampleRows("a1", 2))
	db.InsertArticleRows(ctx, sampleRows("a2", 1))
	db.InsertComments(ctx, []CommentRow{{CommentID: "c1", ArticleID: "a1", Content: "x"}})
	if _, err := db.InsertIngestRun(ctx, IngestRun{ArticleID: "a1", Title: "First", RowCount: 2, CommentCount: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.InsertIngestRun(ctx, IngestRun{ArticleID: "a2", Title: "Second", RowCount: 1, SkippedCount: 3})

	stats, _ = db.GetStats(ctx)
	if stats.Articles != 2 {
		t.Errorf("expected 2 articles, got %d", stats.Articles)
	}
	if stats.Rows != 3 {
		t.Errorf("expected 3 rows, got %d", stats.Rows)
	}
	if stats.Comments != 1 {
		t.Errorf("expected 1 comment, got %d", stats.Comments)
	}
	if stats.IngestRuns != 2 {
		t.Errorf("expected 2 runs, got %d", stats.IngestRuns)
	}
	if stats.LastIngest == nil || stats.LastIngest.Title != "Second" || stats.LastIngest.SkippedCount != 3 {
		t.Errorf("unexpected last ingest %+v", stats.LastIngest)
	}
}
