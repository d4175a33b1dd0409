package annotate

import "strings"

// Article is the assembled body of one ingested document. Word i of
// strings.Fields(Content) has global index Indexes[i].
type Article struct {
	Content string
	Indexes []int
}

// Assemble joins the row texts, each with a single leading space, and
// concatenates their token ranges in the same order.
func Assemble(rows []GroupedRow) Article {
	var b strings.Builder
	indexes := make([]int, 0)
	for _, r := range rows {
		b.WriteString(" ")
		b.WriteString(r.Text)
		indexes = append(indexes, r.Tokens...)
	}
	return Article{Content: b.String(), Indexes: indexes}
}

// Document is the result of grouping and assembling one table.
type Document struct {
	Rows    []GroupedRow
	Article Article
}

// WordCount returns the number of indexed words in the article.
func (d *Document) WordCount() int {
	return len(d.Article.Indexes)
}

// Build groups rows and assembles the article body. Comments are expanded
// separately once the article has an identifier.
func Build(rows []RawRow) (*Document, error) {
	grouped, err := Group(rows)
	if err != nil {
		return nil, err
	}
	return &Document{Rows: grouped, Article: Assemble(grouped)}, nil
}
