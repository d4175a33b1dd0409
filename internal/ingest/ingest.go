package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/textlib/internal/annotate"
	"github.com/TobiSchelling/textlib/internal/database"
	"github.com/TobiSchelling/textlib/internal/index"
	"github.com/TobiSchelling/textlib/internal/metrics"
	"github.com/TobiSchelling/textlib/internal/sheet"
)

// DocumentIndex receives the article and comment documents.
type DocumentIndex interface {
	IndexArticle(ctx context.Context, a index.Article) (string, error)
	IndexComment(ctx context.Context, c index.Comment) (string, error)
	DeleteArticle(ctx context.Context, id string) error
}

// RowStore receives the relational rows of an ingested article.
type RowStore interface {
	InsertArticleRows(ctx context.Context, rows []database.ArticleRow) error
	InsertComments(ctx context.Context, comments []database.CommentRow) error
	InsertIngestRun(ctx context.Context, run database.IngestRun) (int64, error)
}

// Meta describes the article being ingested.
type Meta struct {
	Title       string
	Author      string
	Tags        []string
	Description string
	Date        string // YYYY-MM-DD, defaults to today
}

// StepResult holds the result of a single ingestion step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of one ingestion run.
type Result struct {
	ArticleID       string
	Steps           []StepResult
	Rows            int
	Words           int
	Comments        int
	CommentFailures int
	Report          annotate.Report
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// InvalidInput reports whether the run failed because the spreadsheet
// could not be parsed or its rows were inconsistent.
func (r *Result) InvalidInput() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Name == stepParse || s.Name == stepGroup
		}
	}
	return false
}

func (r *Result) add(step StepResult) bool {
	r.Steps = append(r.Steps, step)
	return step.Err == nil
}

const (
	stepParse = "Parse"
	stepGroup = "Group"
)

// Options configures a Runner.
type Options struct {
	CommentAuthor string // author recorded on generated comments
	Debug         bool   // log every skipped marker and annotation
	Now           func() time.Time
	Progress      func(done, total int)
}

// Runner turns annotated rows into an indexed article with comments.
type Runner struct {
	index   DocumentIndex
	store   RowStore
	metrics *metrics.Metrics
	opts    Options
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(ix DocumentIndex, store RowStore, m *metrics.Metrics, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{index: ix, store: store, metrics: m, opts: opts}
}

// RunFile parses a spreadsheet and ingests its rows.
func (r *Runner) RunFile(ctx context.Context, filename string, content []byte, meta Meta) *Result {
	rows, err := sheet.Parse(filename, content)
	if err != nil {
		res := &Result{}
		res.add(StepResult{Name: stepParse, Err: fmt.Errorf("parsing %s: %w", filename, err)})
		r.record(res, 0)
		return res
	}
	log.Printf("Parsed %d rows from %s", len(rows), filename)
	return r.Run(ctx, rows, meta)
}

// Run ingests one article. Comments are stored only after the article has
// been indexed, since they reference its ID.
func (r *Runner) Run(ctx context.Context, rows []annotate.RawRow, meta Meta) *Result {
	start := time.Now()
	res := &Result{}
	defer func() { r.record(res, time.Since(start)) }()

	if meta.Date == "" {
		meta.Date = r.opts.Now().Format(annotate.DateLayout)
	}

	// Step 1: Group rows and assemble the article
	doc, err := annotate.Build(rows)
	if err != nil {
		res.add(StepResult{Name: stepGroup, Err: err})
		return res
	}
	res.Words = doc.WordCount()
	res.add(StepResult{
		Name:    stepGroup,
		Summary: fmt.Sprintf("%d rows, %d words", len(doc.Rows), res.Words),
	})

	// Step 2: Index the article
	step := r.indexArticle(ctx, doc, meta, res)
	if !res.add(step) {
		return res
	}

	// Step 3: Store article rows
	step = r.storeRows(ctx, doc, meta, res)
	if !res.add(step) {
		r.removeArticle(ctx, res)
		return res
	}

	// Step 4: Expand and index comments
	comments, report := annotate.Expand(doc.Rows, res.ArticleID, annotate.ExpandOptions{
		Author: r.opts.CommentAuthor,
		Now:    r.opts.Now,
	})
	res.Report = report
	r.logSkips(report)
	stored := r.indexComments(ctx, comments, res)
	res.add(StepResult{
		Name: "Comments",
		Summary: fmt.Sprintf("Indexed %d comments, %d failed, %d annotations skipped",
			len(stored), res.CommentFailures, len(report.Skipped())),
	})

	// Step 5: Store comments
	step = r.storeComments(ctx, stored, res)
	if !res.add(step) {
		return res
	}

	// Step 6: Record the run
	_, err = r.store.InsertIngestRun(ctx, database.IngestRun{
		ArticleID:    res.ArticleID,
		Title:        meta.Title,
		RowCount:     res.Rows,
		CommentCount: res.Comments,
		SkippedCount: len(report.Skipped()),
	})
	if err != nil {
		log.Printf("Could not record ingest run: %v", err)
	}
	return res
}

func (r *Runner) indexArticle(ctx context.Context, doc *annotate.Document, meta Meta, res *Result) StepResult {
	log.Printf("Indexing article %q (%d words)...", meta.Title, res.Words)
	id, err := r.index.IndexArticle(ctx, index.Article{
		Title:          meta.Title,
		Content:        doc.Article.Content,
		Tags:           meta.Tags,
		Author:         meta.Author,
		Date:           meta.Date,
		Description:    meta.Description,
		ContentIndexes: doc.Article.Indexes,
	})
	if err != nil {
		return StepResult{Name: "Index", Err: fmt.Errorf("indexing article: %w", err)}
	}
	res.ArticleID = id
	return StepResult{Name: "Index", Summary: "Article " + id}
}

// removeArticle drops an article whose rows could not be stored, so a
// retry does not leave a duplicate in the index.
func (r *Runner) removeArticle(ctx context.Context, res *Result) {
	if err := r.index.DeleteArticle(context.WithoutCancel(ctx), res.ArticleID); err != nil {
		log.Printf("Could not remove article %s after failed row insert: %v", res.ArticleID, err)
		return
	}
	log.Printf("Removed article %s from the index", res.ArticleID)
	res.ArticleID = ""
}

func (r *Runner) storeRows(ctx context.Context, doc *annotate.Document, meta Meta, res *Result) StepResult {
	var description *string
	if meta.Description != "" {
		description = &meta.Description
	}

	rows := make([]database.ArticleRow, 0, len(doc.Rows))
	for i, g := range doc.Rows {
		rows = append(rows, database.ArticleRow{
			ArticleID:          res.ArticleID,
			Title:              meta.Title,
			Tags:               meta.Tags,
			Date:               meta.Date,
			ContentIndexes:     g.Tokens,
			RowContent:         g.Text,
			Author:             meta.Author,
			RowNumberInArticle: i + 1,
			RowNumberToDisplay: g.DisplayRow,
			Description:        description,
		})
	}
	if err := r.store.InsertArticleRows(ctx, rows); err != nil {
		return StepResult{Name: "Rows", Err: fmt.Errorf("storing article rows: %w", err)}
	}
	res.Rows = len(rows)
	return StepResult{Name: "Rows", Summary: fmt.Sprintf("Stored %d rows", len(rows))}
}

// indexComments indexes each comment and returns the rows to store for the
// ones that succeeded.
func (r *Runner) indexComments(ctx context.Context, comments []annotate.Comment, res *Result) []database.CommentRow {
	stored := make([]database.CommentRow, 0, len(comments))
	for i, c := range comments {
		id, err := r.index.IndexComment(ctx, index.Comment{
			ArticleID:  c.ArticleID,
			StartIndex: c.Start,
			EndIndex:   c.End,
			Content:    c.Content,
			Author:     c.Author,
			Date:       c.Date,
			Row:        c.Row,
		})
		if r.opts.Progress != nil {
			r.opts.Progress(i+1, len(comments))
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.CommentFailures += len(comments) - i
				break
			}
			log.Printf("  Comment on row %d failed: %v", c.Row, err)
			res.CommentFailures++
			continue
		}
		row := c.Row
		stored = append(stored, database.CommentRow{
			CommentID:          id,
			ArticleID:          c.ArticleID,
			StartIndex:         c.Start,
			EndIndex:           c.End,
			Date:               c.Date,
			Content:            c.Content,
			Author:             c.Author,
			RowNumberInArticle: &row,
		})
	}
	return stored
}

func (r *Runner) storeComments(ctx context.Context, comments []database.CommentRow, res *Result) StepResult {
	if err := r.store.InsertComments(ctx, comments); err != nil {
		return StepResult{Name: "Store comments", Err: fmt.Errorf("storing comments: %w", err)}
	}
	res.Comments = len(comments)
	return StepResult{Name: "Store comments", Summary: fmt.Sprintf("Stored %d comments", len(comments))}
}

func (r *Runner) logSkips(report annotate.Report) {
	if !r.opts.Debug {
		return
	}
	for _, s := range report.Skipped() {
		log.Printf("  Row %d: skipped marker %q / annotation %q (%s)", s.Row, s.Marker, s.Annotation, s.Skip)
	}
}

func (r *Runner) record(res *Result, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if res.Err() != nil {
		status = "error"
	}
	r.metrics.IngestRuns.WithLabelValues(status).Inc()
	if elapsed > 0 {
		r.metrics.IngestDuration.Observe(elapsed.Seconds())
	}
	r.metrics.IngestRows.Add(float64(res.Rows))
	if res.Comments > 0 {
		r.metrics.IngestComments.WithLabelValues("stored").Add(float64(res.Comments))
	}
	if res.CommentFailures > 0 {
		r.metrics.IngestComments.WithLabelValues("failed").Add(float64(res.CommentFailures))
	}
	for reason, n := range res.Report.SkipCounts() {
		r.metrics.AnnotationsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}
