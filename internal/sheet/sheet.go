// Package sheet reads tabular CSV and XLSX uploads into header-indexed rows.
package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Format is a supported file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromFilename picks the format from the file extension
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(name))
	}
}

// Table is a parsed sheet. The first row is the header.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Read parses data in the given format
func Read(data []byte, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(data)
	case FormatXLSX:
		return ReadXLSX(data, "")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ReadCSV decodes data to UTF-8, detects the delimiter and parses it
func ReadCSV(data []byte) (*Table, error) {
	decoded, err := Decode(data, DetectEncoding(data))
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	r := csv.NewReader(strings.NewReader(decoded))
	r.Comma = DetectDelimiter(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return newTable(records), nil
}

// ReadXLSX reads the named sheet, or the first one when sheetName is empty
func ReadXLSX(data []byte, sheetName string) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheetName = sheets[0]
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheetName, err)
	}
	return newTable(rows), nil
}

func newTable(records [][]string) *Table {
	t := &Table{}
	for i, rec := range records {
		trimmed := make([]string, len(rec))
		for j, f := range rec {
			trimmed[j] = strings.TrimSpace(f)
		}
		if i == 0 {
			t.Headers = trimmed
			continue
		}
		if isEmptyRow(trimmed) {
			continue
		}
		t.Rows = append(t.Rows, trimmed)
	}
	return t
}

func isEmptyRow(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

// Columns maps wanted column names to header positions. Matching is
// case-insensitive and ignores diacritics; missing columns are absent from the map.
func (t *Table) Columns(names ...string) map[string]int {
	idx := make(map[string]int, len(names))
	for _, name := range names {
		want := normalizeHeader(name)
		for i, h := range t.Headers {
			if normalizeHeader(h) == want {
				idx[name] = i
				break
			}
		}
	}
	return idx
}

// Value returns the cell of row for column, empty when absent
func Value(row []string, cols map[string]int, column string) string {
	i, ok := cols[column]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func normalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, _ := transform.String(t, strings.TrimSpace(h))
	folded = strings.ToLower(folded)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(folded)
}
