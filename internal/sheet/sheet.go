package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/textlib/internal/annotate"
)

// Canonical column names.
const (
	ColDisplayRow = "display_row"
	ColLine       = "line"
	ColMarker     = "marker"
	ColAnnotation = "annotation"
)

// aliases maps normalized header names to canonical columns. The Russian
// names are the ones used by the library's editors.
var aliases = map[string]string{
	"номер_строки_текста_для_отображения": ColDisplayRow,
	"display_row":                         ColDisplayRow,
	"display_row_number":                  ColDisplayRow,
	"row":                                 ColDisplayRow,

	"строка":    ColLine,
	"line":      ColLine,
	"line_text": ColLine,
	"text":      ColLine,

	"комментируемое_слово": ColMarker,
	"annotated_word":       ColMarker,
	"commented_word":       ColMarker,
	"marker":               ColMarker,

	"комментарий":     ColAnnotation,
	"annotation":      ColAnnotation,
	"annotation_text": ColAnnotation,
	"comment":         ColAnnotation,
}

var skipSheets = map[string]bool{
	"info":     true,
	"metadata": true,
	"about":    true,
	"readme":   true,
	"notes":    true,
}

// Parse reads an annotated table from CSV, TSV or Excel (.xlsx) content.
// The file type is taken from the filename extension.
func Parse(filename string, content []byte) ([]annotate.RawRow, error) {
	lower := strings.ToLower(filename)

	var records [][]string
	var err error
	switch {
	case strings.HasSuffix(lower, ".csv"):
		records, err = readCSV(content, ',')
	case strings.HasSuffix(lower, ".tsv"):
		records, err = readCSV(content, '\t')
	case strings.HasSuffix(lower, ".xlsx"):
		records, err = readExcel(content)
	case strings.HasSuffix(lower, ".xls"):
		return nil, fmt.Errorf("unsupported file type: %s (save legacy .xls workbooks as .xlsx)", filename)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(content []byte, comma rune) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}
	return records, nil
}

func readExcel(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("opening Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in Excel file")
	}

	var sheetName string
	for _, s := range sheets {
		if !skipSheets[strings.ToLower(strings.TrimSpace(s))] {
			sheetName = s
			break
		}
	}
	if sheetName == "" {
		sheetName = sheets[len(sheets)-1]
	}
	log.Printf("Reading sheet %q", sheetName)

	records, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("reading Excel rows: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty sheet %q", sheetName)
	}
	return records, nil
}

// toRows maps the header row onto canonical columns and converts the
// remaining records.
func toRows(records [][]string) ([]annotate.RawRow, error) {
	columns := make(map[string]int)
	for i, h := range records[0] {
		canon, ok := aliases[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := columns[canon]; !dup {
			columns[canon] = i
		}
	}
	for _, required := range []string{ColDisplayRow, ColLine} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var rows []annotate.RawRow
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		line := i + 2 // 1-based, after the header

		rawNumber := cell(rec, columns, ColDisplayRow)
		n, err := parseRowNumber(rawNumber)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid display row %q: %w", line, rawNumber, err)
		}
		rows = append(rows, annotate.RawRow{
			DisplayRow: n,
			Line:       rawCell(rec, columns, ColLine),
			Marker:     cell(rec, columns, ColMarker),
			Annotation: cell(rec, columns, ColAnnotation),
		})
	}
	return rows, nil
}

// cell returns the trimmed value of a column; "-" means empty.
func cell(rec []string, columns map[string]int, name string) string {
	return strings.TrimSpace(rawCell(rec, columns, name))
}

// rawCell returns the value of a column as written; "-" means empty.
func rawCell(rec []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(rec) {
		return ""
	}
	if strings.TrimSpace(rec[i]) == "-" {
		return ""
	}
	return rec[i]
}

func parseRowNumber(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number")
	}
	return int(f), nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NormalizeHeader lower-cases a header and replaces every run of
// non-alphanumeric runes with a single underscore.
func NormalizeHeader(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
