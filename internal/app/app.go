// Package app assembles the stores and engines shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/config"
	"github.com/easycrawl/catalog-service/internal/consistency"
	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/jobs"
	"github.com/easycrawl/catalog-service/internal/matching"
	"github.com/easycrawl/catalog-service/internal/pricehistory"
	"github.com/easycrawl/catalog-service/internal/rawimport"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// App holds the wired components
type App struct {
	Pool          *pgxpool.Pool
	Catalog       *database.CatalogStore
	RegistryStore *database.RegistryStore
	Cache         *registry.Cache
	Writer        *registry.Writer
	Notifier      *registry.RedisNotifier // nil without a redis address
	Matcher       *matching.Engine
	Consistency   *consistency.Engine
	Runner        *jobs.Runner
	Importer      *rawimport.Importer
}

// New wires every component on top of pool and loads the registry once
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Matching.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Pool:          pool,
		Catalog:       database.NewCatalogStore(pool),
		RegistryStore: database.NewRegistryStore(pool),
	}
	a.Cache = registry.NewCache(a.RegistryStore, logger)

	var publisher registry.Publisher
	if cfg.Registry.RedisAddr != "" {
		a.Notifier, err = registry.NewRedisNotifier(ctx, cfg.Registry.RedisAddr, cfg.Registry.RedisChannel, logger)
		if err != nil {
			// registry changes stay local to this process
			logger.Warn().Err(err).Msg("Registry notifications disabled")
		} else {
			publisher = a.Notifier
		}
	}
	a.Writer = registry.NewWriter(a.RegistryStore, a.Cache, publisher, logger)

	if _, err := a.Cache.Refresh(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initial registry load: %w", err)
	}

	a.Matcher = matching.NewEngine(a.Catalog, a.Cache, pricehistory.NewRecorder(loc), matching.Config{
		MatchThreshold: cfg.Matching.MatchThreshold,
		BatchSize:      cfg.Matching.BatchSize,
		Workers:        cfg.Matching.Workers,
	}, logger)

	a.Consistency = consistency.NewEngine(a.Catalog, a.Cache, consistency.Config{
		BatchSize:          cfg.Consistency.BatchSize,
		MergeThreshold:     cfg.Consistency.MergeThreshold,
		DuplicateThreshold: cfg.Consistency.DuplicateThreshold,
		SmartphoneCategory: cfg.Consistency.SmartphoneCategory,
		PagesPerSecond:     cfg.Consistency.PagesPerSecond,
	}, logger)

	a.Runner = jobs.NewRunner(jobs.Deps{
		Matcher:             a.Matcher,
		Consistency:         a.Consistency,
		Registry:            a.Cache,
		Brands:              a.Writer,
		MinBrandOccurrences: cfg.Registry.MinBrandOccurrences,
	}, logger)

	a.Importer = rawimport.NewImporter(a.Catalog, logger)
	return a, nil
}

// Close releases the redis client. The pool belongs to the caller.
func (a *App) Close() {
	if a.Notifier != nil {
		_ = a.Notifier.Close()
	}
}
