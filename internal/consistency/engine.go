// Package consistency keeps the catalog deduplicated and tidy as the registry
// evolves. Every operation pages through products, writes only what changed
// and is safe to re-run from the start.
package consistency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/similarity"
)

// SnapshotSource supplies the registry snapshot used for a run
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// Config tunes the engine
type Config struct {
	BatchSize          int
	MergeThreshold     float64
	DuplicateThreshold float64
	SmartphoneCategory string  // category whose names carry the RAM+storage combination
	PagesPerSecond     float64 // 0 = unthrottled
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		MergeThreshold:     similarity.DefaultMergeThreshold,
		DuplicateThreshold: similarity.DefaultDuplicateThreshold,
		SmartphoneCategory: "smartphones",
	}
}

// Operation is one independently triggerable sweep
type Operation string

const (
	OpBrands     Operation = "brands"     // re-extract brand and model
	OpSimilar    Operation = "similar"    // merge similar products
	OpCategories Operation = "categories" // infer missing categories
	OpNames      Operation = "names"      // rebuild product names
	OpDuplicates Operation = "duplicates" // strict duplicate merge
)

var (
	consistencyAll      = []Operation{OpBrands, OpCategories, OpNames, OpSimilar}
	consistencyDefaults = []Operation{OpBrands, OpSimilar}
	cleanupAll          = []Operation{OpNames, OpDuplicates, OpCategories}
)

// ParseConsistencyFlags parses the comma separated flags of a consistency job.
// Empty means brands and similar.
func ParseConsistencyFlags(params string) ([]Operation, error) {
	return parseFlags(params, consistencyAll, consistencyDefaults)
}

// ParseCleanupFlags parses the comma separated flags of a cleanup job.
// Empty means all.
func ParseCleanupFlags(params string) ([]Operation, error) {
	return parseFlags(params, cleanupAll, cleanupAll)
}

func parseFlags(params string, all, defaults []Operation) ([]Operation, error) {
	allowed := make(map[Operation]bool, len(all))
	for _, op := range all {
		allowed[op] = true
	}

	selected := make(map[Operation]bool)
	for _, f := range strings.Split(params, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		switch {
		case f == "":
		case f == "all":
			for _, op := range all {
				selected[op] = true
			}
		case allowed[Operation(f)]:
			selected[Operation(f)] = true
		default:
			return nil, fmt.Errorf("unknown flag %q", f)
		}
	}
	if len(selected) == 0 {
		return defaults, nil
	}

	// keep the canonical order of all
	var ops []Operation
	for _, op := range all {
		if selected[op] {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// Change is one audited field update
type Change struct {
	ProductID int64  `json:"product_id"`
	Field     string `json:"field"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

// Report summarizes one operation
type Report struct {
	Operation Operation
	Scanned   int
	Updated   int
	Changes   []Change
	Groups    int              // merge groups found
	Merged    int              // products merged away
	Errors    map[int64]string // product id (survivor id for merges) -> error
	Duration  time.Duration
}

func newReport(op Operation) *Report {
	return &Report{Operation: op, Errors: make(map[int64]string)}
}

// Summary is a one line human readable description
func (r *Report) Summary() string {
	switch r.Operation {
	case OpSimilar, OpDuplicates:
		return fmt.Sprintf("%s: %d groups, %d products merged, %d errors", r.Operation, r.Groups, r.Merged, len(r.Errors))
	default:
		return fmt.Sprintf("%s: %d scanned, %d updated, %d errors", r.Operation, r.Scanned, r.Updated, len(r.Errors))
	}
}

// Engine runs consistency and cleanup sweeps
type Engine struct {
	store    catalog.Store
	registry SnapshotSource
	config   Config
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewEngine creates a consistency engine
func NewEngine(store catalog.Store, source SnapshotSource, config Config, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MergeThreshold <= 0 {
		config.MergeThreshold = def.MergeThreshold
	}
	if config.DuplicateThreshold <= 0 {
		config.DuplicateThreshold = def.DuplicateThreshold
	}
	if config.SmartphoneCategory == "" {
		config.SmartphoneCategory = def.SmartphoneCategory
	}

	e := &Engine{
		store:    store,
		registry: source,
		config:   config,
		logger:   logger.With().Str("component", "consistency").Logger(),
	}
	if config.PagesPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.PagesPerSecond), 1)
	}
	return e
}

// Run executes ops in order. An operation failing as a whole stops the run;
// the reports of completed operations are returned with the error.
func (e *Engine) Run(ctx context.Context, jobType string, ops []Operation) ([]*Report, error) {
	start := time.Now()
	defer func() { metrics.RecordJobDuration(jobType, time.Since(start)) }()

	var reports []*Report
	for _, op := range ops {
		var (
			report *Report
			err    error
		)
		switch op {
		case OpBrands:
			report, err = e.ReextractBrandsAndModels(ctx)
		case OpSimilar:
			report, err = e.MergeSimilar(ctx)
		case OpDuplicates:
			report, err = e.MergeDuplicates(ctx)
		case OpCategories:
			report, err = e.InferCategories(ctx)
		case OpNames:
			report, err = e.NormalizeNames(ctx)
		default:
			err = fmt.Errorf("unknown operation %q", op)
		}
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("%s: %w", op, err)
		}
	}
	return reports, nil
}

// wait paces page fetches when a rate is configured
func (e *Engine) wait(ctx context.Context) error {
	if e.limiter == nil {
		return ctx.Err()
	}
	return e.limiter.Wait(ctx)
}

// eachPage feeds fetch results to fn until a short page
func (e *Engine) eachPage(ctx context.Context, fetch func(afterID int64, limit int) ([]catalog.Product, error), fn func(p catalog.Product)) error {
	var afterID int64
	for {
		if err := e.wait(ctx); err != nil {
			return err
		}
		products, err := fetch(afterID, e.config.BatchSize)
		if err != nil {
			return err
		}
		for _, p := range products {
			fn(p)
		}
		if len(products) < e.config.BatchSize {
			return nil
		}
		afterID = products[len(products)-1].ID
	}
}

func (e *Engine) finish(report *Report, start time.Time) *Report {
	report.Duration = time.Since(start)
	sort.SliceStable(report.Changes, func(i, j int) bool { return report.Changes[i].ProductID < report.Changes[j].ProductID })
	e.logger.Info().
		Str("operation", string(report.Operation)).
		Int("scanned", report.Scanned).
		Int("updated", report.Updated).
		Int("groups", report.Groups).
		Int("merged", report.Merged).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration).
		Msg("Consistency operation completed")
	return report
}
