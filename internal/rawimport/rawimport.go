// Package rawimport loads scraped listings from CSV or XLSX exports into
// unprocessed raw items.
package rawimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/sheet"
)

// Columns read from the sheet header
var Columns = []string{"title", "price", "old_price", "discount", "source_url", "config_code", "website_code"}

// Options fill values missing from a row
type Options struct {
	ConfigCode  string
	WebsiteCode string
	BatchSize   int
}

// RowError reports a rejected row
type RowError struct {
	Row     int    `json:"row"` // 1-based, header is row 1
	Message string `json:"message"`
}

// Result summarizes an import
type Result struct {
	Rows     int        `json:"rows"`
	Inserted int        `json:"inserted"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Importer writes sheet rows as raw items
type Importer struct {
	store  catalog.RawItemStore
	logger zerolog.Logger
}

// NewImporter creates an importer writing to store
func NewImporter(store catalog.RawItemStore, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: logger.With().Str("component", "rawimport").Logger(),
	}
}

// Import parses data and inserts every valid row. Rows with a bad price are
// reported and skipped; a missing title or link is left for the matcher to
// park as invalid data.
func (im *Importer) Import(ctx context.Context, data []byte, format sheet.Format, opts Options) (*Result, error) {
	items, rowErrs, err := Parse(data, format, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Rows: len(items) + len(rowErrs), Errors: rowErrs}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = 500
	}
	for start := 0; start < len(items); start += batch {
		end := min(start+batch, len(items))
		n, err := im.store.InsertRawItems(ctx, items[start:end])
		res.Inserted += n
		if err != nil {
			return res, fmt.Errorf("insert raw items: %w", err)
		}
	}

	im.logger.Info().
		Int("rows", res.Rows).
		Int("inserted", res.Inserted).
		Int("rejected", len(res.Errors)).
		Msg("Imported raw items")
	return res, nil
}

// Parse converts a sheet into raw items
func Parse(data []byte, format sheet.Format, opts Options) ([]catalog.RawItem, []RowError, error) {
	table, err := sheet.Read(data, format)
	if err != nil {
		return nil, nil, err
	}
	cols := table.Columns(Columns...)
	if _, ok := cols["title"]; !ok {
		return nil, nil, fmt.Errorf("missing column %q", "title")
	}

	var items []catalog.RawItem
	var rowErrs []RowError
	for i, row := range table.Rows {
		rowNum := i + 2
		item, err := parseRow(row, cols, opts)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		items = append(items, item)
	}
	return items, rowErrs, nil
}

func parseRow(row []string, cols map[string]int, opts Options) (catalog.RawItem, error) {
	item := catalog.RawItem{
		Title:       sheet.Value(row, cols, "title"),
		Link:        sheet.Value(row, cols, "source_url"),
		ConfigCode:  firstNonEmpty(sheet.Value(row, cols, "config_code"), opts.ConfigCode),
		WebsiteCode: firstNonEmpty(sheet.Value(row, cols, "website_code"), opts.WebsiteCode),
		PriceString: sheet.Value(row, cols, "price"),
	}

	var err error
	if item.Price, err = sheet.ParseOptionalPrice(item.PriceString); err != nil {
		return item, fmt.Errorf("price: %w", err)
	}
	if item.OldPrice, err = sheet.ParseOptionalPrice(sheet.Value(row, cols, "old_price")); err != nil {
		return item, fmt.Errorf("old_price: %w", err)
	}
	if item.Discount, err = sheet.ParseOptionalPrice(strings.TrimSuffix(sheet.Value(row, cols, "discount"), "%")); err != nil {
		return item, fmt.Errorf("discount: %w", err)
	}
	return item, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
