package annotate

import (
	"fmt"
	"sort"
	"strings"
)

// RawRow is one line of the source table. Several raw rows may share a
// display row when a line carries more than one annotation.
type RawRow struct {
	DisplayRow int
	Line       string
	Marker     string
	Annotation string
}

// GroupedRow is one display row with its annotations collapsed and its
// global token range assigned.
type GroupedRow struct {
	DisplayRow  int
	Text        string
	Markers     []string // distinct, non-empty, first-seen order
	Annotations []string // distinct, non-empty, first-seen order
	Tokens      []int    // one global index per whitespace-separated word of Text
}

// RowProblem describes why a display row cannot be grouped.
type RowProblem struct {
	DisplayRow int
	Reason     string
}

// InputError reports every structurally invalid display row of one run.
type InputError struct {
	Problems []RowProblem
}

func (e *InputError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("row %d: %s", p.DisplayRow, p.Reason)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Group collapses raw rows by display row, in ascending display-row order,
// and assigns each group the next run of global token indexes. The token
// offset starts at zero on every call.
func Group(rows []RawRow) ([]GroupedRow, error) {
	byRow := make(map[int]*GroupedRow)
	var order []int
	var problems []RowProblem
	conflicting := make(map[int]bool)

	for _, r := range rows {
		g, ok := byRow[r.DisplayRow]
		if !ok {
			g = &GroupedRow{DisplayRow: r.DisplayRow, Text: r.Line}
			byRow[r.DisplayRow] = g
			order = append(order, r.DisplayRow)
		} else if g.Text != r.Line && !conflicting[r.DisplayRow] {
			conflicting[r.DisplayRow] = true
			problems = append(problems, RowProblem{
				DisplayRow: r.DisplayRow,
				Reason:     fmt.Sprintf("conflicting line text %q and %q", g.Text, r.Line),
			})
		}
		g.Markers = appendDistinct(g.Markers, r.Marker)
		g.Annotations = appendDistinct(g.Annotations, r.Annotation)
	}

	sort.Ints(order)

	grouped := make([]GroupedRow, 0, len(order))
	offset := 0
	for _, n := range order {
		g := byRow[n]
		if len(strings.Fields(g.Text)) == 0 && len(g.Markers) > 0 {
			problems = append(problems, RowProblem{
				DisplayRow: n,
				Reason:     "annotated word on a row without text",
			})
		}
		g.Tokens, offset = assignTokens(offset, g.Text)
		grouped = append(grouped, *g)
	}

	if len(problems) > 0 {
		sort.SliceStable(problems, func(i, j int) bool {
			return problems[i].DisplayRow < problems[j].DisplayRow
		})
		return nil, &InputError{Problems: problems}
	}
	return grouped, nil
}

// assignTokens gives text the indexes offset, offset+1, ... one per word and
// returns the offset for the next row.
func assignTokens(offset int, text string) ([]int, int) {
	n := len(strings.Fields(text))
	tokens := make([]int, n)
	for i := range tokens {
		tokens[i] = offset + i
	}
	return tokens, offset + n
}

func appendDistinct(list []string, value string) []string {
	if strings.TrimSpace(value) == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
