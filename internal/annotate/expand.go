package annotate

import (
	"time"
)

// DefaultAuthor is used for comments whose author is not known.
const DefaultAuthor = "Unknown"

// DateLayout is the date format of comments and articles.
const DateLayout = "2006-01-02"

// Comment is a comment anchored to global token indexes Start..End
// (inclusive) of an article.
type Comment struct {
	ArticleID string
	Start     int
	End       int
	Content   string
	Author    string
	Date      string
	Row       int // originating display row
}

// SkipReason explains why an annotation produced no comment.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipUnmatched  SkipReason = "unmatched"
	SkipUnpaired   SkipReason = "unpaired"
	SkipOutOfRange SkipReason = "out_of_range"
)

// Resolution is the outcome of one marker or annotation of a row.
type Resolution struct {
	Row        int
	Marker     string
	Annotation string
	Span       Span // local word span, valid when the marker was found
	Skip       SkipReason
}

// Report collects the resolutions of one expansion.
type Report struct {
	Resolutions []Resolution
}

// Emitted returns the number of resolutions that produced a comment.
func (r Report) Emitted() int {
	n := 0
	for _, res := range r.Resolutions {
		if res.Skip == SkipNone {
			n++
		}
	}
	return n
}

// Skipped returns the resolutions that produced no comment.
func (r Report) Skipped() []Resolution {
	var out []Resolution
	for _, res := range r.Resolutions {
		if res.Skip != SkipNone {
			out = append(out, res)
		}
	}
	return out
}

// SkipCounts returns the number of skipped resolutions per reason.
func (r Report) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, res := range r.Resolutions {
		if res.Skip != SkipNone {
			counts[res.Skip]++
		}
	}
	return counts
}

// ExpandOptions controls the fields Expand fills in.
type ExpandOptions struct {
	Author string
	Now    func() time.Time
}

func (o ExpandOptions) withDefaults() ExpandOptions {
	if o.Author == "" {
		o.Author = DefaultAuthor
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Expand resolves every marker of every row to a global token span and
// pairs located markers with the row's annotations by position. Markers
// that cannot be located or translated are skipped and reported; they never
// stop the expansion.
func Expand(rows []GroupedRow, articleID string, opts ExpandOptions) ([]Comment, Report) {
	opts = opts.withDefaults()
	date := opts.Now().Format(DateLayout)

	var comments []Comment
	var report Report
	for _, row := range rows {
		located := make([]Resolution, 0, len(row.Markers))
		for _, marker := range row.Markers {
			span, ok := Locate(row.Text, marker)
			if !ok {
				report.Resolutions = append(report.Resolutions, Resolution{
					Row: row.DisplayRow, Marker: marker, Skip: SkipUnmatched,
				})
				continue
			}
			located = append(located, Resolution{Row: row.DisplayRow, Marker: marker, Span: span})
		}

		for i, res := range located {
			if i >= len(row.Annotations) {
				res.Skip = SkipUnpaired
				report.Resolutions = append(report.Resolutions, res)
				continue
			}
			res.Annotation = row.Annotations[i]

			start, end, ok := translate(row.Tokens, res.Span)
			if !ok {
				res.Skip = SkipOutOfRange
				report.Resolutions = append(report.Resolutions, res)
				continue
			}
			report.Resolutions = append(report.Resolutions, res)
			comments = append(comments, Comment{
				ArticleID: articleID,
				Start:     start,
				End:       end,
				Content:   res.Annotation,
				Author:    opts.Author,
				Date:      date,
				Row:       row.DisplayRow,
			})
		}

		for _, annotation := range row.Annotations[min(len(located), len(row.Annotations)):] {
			report.Resolutions = append(report.Resolutions, Resolution{
				Row: row.DisplayRow, Annotation: annotation, Skip: SkipUnpaired,
			})
		}
	}
	return comments, report
}

// translate maps a local word span onto the row's global token range.
func translate(tokens []int, span Span) (int, int, bool) {
	if span.Start < 0 || span.End < span.Start || span.End >= len(tokens) {
		return 0, 0, false
	}
	return tokens[span.Start], tokens[span.End], true
}
