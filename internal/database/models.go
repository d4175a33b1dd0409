package database

// ArticleRow is one display row of an ingested article.
type ArticleRow struct {
	RowID              int64    `json:"row_id"`
	ArticleID          string   `json:"article_id"`
	Title              string   `json:"title"`
	Tags               []string `json:"tags"`
	Date               string   `json:"date"`
	ContentIndexes     []int    `json:"content_indexes"`
	RowContent         string   `json:"row_content"`
	Author             string   `json:"author"`
	RowNumberInArticle int      `json:"row_number_in_article"` // 1-based position in the article
	RowNumberToDisplay int      `json:"row_number_to_display"`
	Description        *string  `json:"description,omitempty"`
}

// CommentRow is a comment as stored next to its article rows.
type CommentRow struct {
	RowID              int64  `json:"row_id"`
	CommentID          string `json:"comment_id"`
	ArticleID          string `json:"article_id"`
	StartIndex         int    `json:"comment_start_index"`
	EndIndex           int    `json:"comment_end_index"`
	Date               string `json:"date"`
	Content            string `json:"content"`
	Author             string `json:"author"`
	RowNumberInArticle *int   `json:"row_number_in_article,omitempty"`
}

// IngestRun records one spreadsheet import.
type IngestRun struct {
	ID           int64
	ArticleID    string
	Title        string
	RowCount     int
	CommentCount int
	SkippedCount int
	CreatedAt    *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles   int
	Rows       int
	Comments   int
	IngestRuns int
	LastIngest *IngestRun
}
