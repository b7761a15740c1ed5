package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/internal/sheet"
)

// RowError reports a rejected import row
type RowError struct {
	Row     int    `json:"row"` // 1-based, header is row 1
	Message string `json:"message"`
}

// ParseEntries reads registry entries from a sheet with columns
// type, key, value, enabled. A missing enabled cell means enabled.
func ParseEntries(data []byte, format sheet.Format) ([]Entry, []RowError, error) {
	table, err := sheet.Read(data, format)
	if err != nil {
		return nil, nil, err
	}

	cols := table.Columns("type", "key", "value", "enabled")
	if _, ok := cols["type"]; !ok {
		return nil, nil, fmt.Errorf("missing column %q", "type")
	}
	if _, ok := cols["key"]; !ok {
		return nil, nil, fmt.Errorf("missing column %q", "key")
	}

	var entries []Entry
	var rowErrs []RowError
	for i, row := range table.Rows {
		rowNum := i + 2

		typ, err := ParseEntryType(sheet.Value(row, cols, "type"))
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		key := strings.TrimSpace(sheet.Value(row, cols, "key"))
		if key == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Message: "empty key"})
			continue
		}

		enabled := true
		if raw := sheet.Value(row, cols, "enabled"); raw != "" {
			enabled, err = parseBool(raw)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: rowNum, Message: err.Error()})
				continue
			}
		}

		entries = append(entries, Entry{
			Type:    typ,
			Key:     key,
			Value:   sheet.Value(row, cols, "value"),
			Enabled: enabled,
		})
	}
	return entries, rowErrs, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "da":
		return true, nil
	case "no", "n", "ne":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid enabled value %q", s)
	}
	return b, nil
}

// Publisher announces registry changes to other processes
type Publisher interface {
	Publish(ctx context.Context, reason string) error
}

// Writer applies registry writes and then refreshes the local cache and
// notifies other processes.
type Writer struct {
	store     Store
	cache     *Cache
	publisher Publisher
	logger    zerolog.Logger
}

// NewWriter creates a writer. publisher may be nil.
func NewWriter(store Store, cache *Cache, publisher Publisher, logger zerolog.Logger) *Writer {
	return &Writer{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With().Str("component", "registry_writer").Logger(),
	}
}

// Import upserts entries
func (w *Writer) Import(ctx context.Context, entries []Entry) (int, error) {
	n, err := w.store.Upsert(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("upsert registry entries: %w", err)
	}
	w.afterWrite(ctx, "import")
	return n, nil
}

// AddBrandCandidates stores mined brand keys as disabled entries for review
func (w *Writer) AddBrandCandidates(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := w.store.AddBrandCandidates(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("add brand candidates: %w", err)
	}
	w.afterWrite(ctx, "brand-mining")
	return n, nil
}

// Refresh reloads the local cache and asks every other process to do the same
func (w *Writer) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := w.cache.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, "manual"); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to publish registry invalidation")
		}
	}
	return snap, nil
}

func (w *Writer) afterWrite(ctx context.Context, reason string) {
	if w.cache != nil {
		if _, err := w.cache.Reload(ctx); err != nil {
			w.logger.Error().Err(err).Str("reason", reason).Msg("Failed to refresh registry after write")
		}
	}
	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, reason); err != nil {
			w.logger.Warn().Err(err).Str("reason", reason).Msg("Failed to publish registry invalidation")
		}
	}
}
