// Package matching resolves scraped raw items into catalog products.
//
// Every raw item ends either matched to a product (existing or newly created)
// or parked as an unmappable item with a reason code. No match is never an
// error; errors are reserved for store failures, which leave the item
// unprocessed for the next run.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
	"github.com/easycrawl/catalog-service/internal/pricehistory"
	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/similarity"
)

// SnapshotSource supplies the registry snapshot used for a run
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// Config tunes the engine
type Config struct {
	MatchThreshold float64
	BatchSize      int
	Workers        int // items processed concurrently within a page
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MatchThreshold: similarity.DefaultMatchThreshold,
		BatchSize:      100,
		Workers:        1,
	}
}

// Engine runs the matching pipeline
type Engine struct {
	store    catalog.Store
	registry SnapshotSource
	recorder *pricehistory.Recorder
	config   Config
	logger   zerolog.Logger

	// Now stamps unmappable attempts and undated observations. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates a matching engine
func NewEngine(store catalog.Store, source SnapshotSource, recorder *pricehistory.Recorder, config Config, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if config.MatchThreshold <= 0 {
		config.MatchThreshold = def.MatchThreshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if recorder == nil {
		recorder = pricehistory.NewRecorder(nil)
	}
	return &Engine{
		store:    store,
		registry: source,
		recorder: recorder,
		config:   config,
		logger:   logger.With().Str("component", "matching").Logger(),
		Now:      time.Now,
	}
}

// RunParams selects the raw items of a run
type RunParams struct {
	Category string // substring of the config code, empty = all
}

// RunResult aggregates one batch run
type RunResult struct {
	Processed  int
	Matched    int
	Created    int
	Unmappable int
	Skipped    int
	Failed     int
	Pages      int
	ByReason   map[catalog.ReasonCode]int
	Errors     map[int64]string // raw item id -> error
}

func newRunResult() *RunResult {
	return &RunResult{
		ByReason: make(map[catalog.ReasonCode]int),
		Errors:   make(map[int64]string),
	}
}

func (r *RunResult) add(res ItemResult, err error) {
	r.Processed++
	if err != nil {
		r.Failed++
		r.Errors[res.RawItemID] = err.Error()
		return
	}
	switch res.Outcome {
	case OutcomeMatched:
		r.Matched++
	case OutcomeCreated:
		r.Created++
	case OutcomeUnmappable:
		r.Unmappable++
		r.ByReason[res.Reason]++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Counts flattens the result for job reporting
func (r *RunResult) Counts() map[string]int {
	counts := map[string]int{
		"processed":  r.Processed,
		"matched":    r.Matched,
		"created":    r.Created,
		"unmappable": r.Unmappable,
		"skipped":    r.Skipped,
		"failed":     r.Failed,
		"pages":      r.Pages,
	}
	for reason, n := range r.ByReason {
		counts["reason:"+string(reason)] = n
	}
	return counts
}

// Summary is a one line human readable description
func (r *RunResult) Summary() string {
	s := fmt.Sprintf("processed %d raw items: %d matched, %d new products, %d unmappable, %d failed",
		r.Processed, r.Matched, r.Created, r.Unmappable, r.Failed)
	if len(r.ByReason) == 0 {
		return s
	}
	reasons := make([]string, 0, len(r.ByReason))
	for reason, n := range r.ByReason {
		reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(reasons)
	return s + " (" + strings.Join(reasons, ", ") + ")"
}

// Run processes every unprocessed raw item, one page at a time. Items within a
// page may run concurrently; a failing item is recorded and the run goes on.
// The error is non-nil only when the run itself could not continue.
func (e *Engine) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	start := time.Now()
	snap := e.registry.Snapshot()
	result := newRunResult()

	e.logger.Info().
		Str("category", params.Category).
		Int64("registry_version", snap.Version()).
		Int("batch_size", e.config.BatchSize).
		Int("workers", e.config.Workers).
		Msg("Starting matching run")

	var afterID int64
	for {
		items, err := e.store.ListUnprocessedRawItems(ctx, catalog.RawItemFilter{
			Category: params.Category,
			AfterID:  afterID,
			Limit:    e.config.BatchSize,
		})
		if err != nil {
			return result, fmt.Errorf("list unprocessed raw items: %w", err)
		}
		if len(items) == 0 {
			break
		}

		result.Pages++
		if err := e.processPage(ctx, snap, items, false, result); err != nil {
			return result, err
		}
		afterID = items[len(items)-1].ID
		if len(items) < e.config.BatchSize {
			break
		}
	}

	metrics.RecordJobDuration("match", time.Since(start))
	e.logger.Info().
		Int("processed", result.Processed).
		Int("matched", result.Matched).
		Int("created", result.Created).
		Int("unmappable", result.Unmappable).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("Matching run completed")
	return result, nil
}

func (e *Engine) processPage(ctx context.Context, snap *registry.Snapshot, items []catalog.RawItem, retry bool, result *RunResult) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for _, raw := range items {
		raw := raw
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := e.process(gctx, snap, raw, retry)
			if err != nil {
				e.logger.Error().Err(err).Int64("raw_item_id", raw.ID).Msg("Failed to process raw item")
			}
			mu.Lock()
			result.add(res, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
