package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
	"github.com/easycrawl/catalog-service/internal/normalize"
	"github.com/easycrawl/catalog-service/internal/similarity"
)

// MergeSimilar merges products of one brand that score at least the merge
// threshold against each other.
func (e *Engine) MergeSimilar(ctx context.Context) (*Report, error) {
	return e.merge(ctx, OpSimilar, e.config.MergeThreshold)
}

// MergeDuplicates is the cleanup sweep: the same algorithm as MergeSimilar
// with the stricter duplicate threshold.
func (e *Engine) MergeDuplicates(ctx context.Context) (*Report, error) {
	return e.merge(ctx, OpDuplicates, e.config.DuplicateThreshold)
}

func (e *Engine) merge(ctx context.Context, op Operation, threshold float64) (*Report, error) {
	start := time.Now()
	report := newReport(op)
	scorer := similarity.NewScorer(normalize.New(e.registry.Snapshot()), similarity.ModeMerge)

	brands, err := e.store.BrandsWithMultipleProducts(ctx)
	if err != nil {
		return e.finish(report, start), fmt.Errorf("list brands with multiple products: %w", err)
	}

	for _, brand := range brands {
		// grouping compares every pair, so one brand is held for the pass
		var products []catalog.Product
		err := e.eachPage(ctx, func(afterID int64, limit int) ([]catalog.Product, error) {
			page, err := e.store.ListProductsByBrand(ctx, brand, afterID, limit)
			if err != nil {
				return nil, fmt.Errorf("list products of brand %q: %w", brand, err)
			}
			return page, nil
		}, func(p catalog.Product) {
			products = append(products, p)
		})
		if err != nil {
			return e.finish(report, start), err
		}
		report.Scanned += len(products)

		for _, group := range GroupSimilar(scorer, products, threshold) {
			report.Groups++
			survivor, merged, err := e.MergeGroup(ctx, group)
			metrics.RecordMerge(string(op), err == nil)
			if err != nil {
				report.Errors[survivor] = err.Error()
				e.logger.Error().Err(err).
					Int64("survivor_id", survivor).
					Int("group_size", len(group)).
					Msg("Failed to merge product group")
				continue
			}
			report.Merged += merged
			e.logger.Info().
				Int64("survivor_id", survivor).
				Int("merged", merged).
				Str("brand", brand).
				Msg("Merged products")
		}
	}
	return e.finish(report, start), nil
}

// GroupSimilar groups products whose score against the group's first member
// reaches threshold. A product joins at most one group per pass, so merges
// never chain. Products without a model are left alone.
func GroupSimilar(scorer *similarity.Scorer, products []catalog.Product, threshold float64) [][]catalog.Product {
	processed := make(map[int64]bool, len(products))
	var groups [][]catalog.Product

	for i, a := range products {
		if processed[a.ID] || a.Model == "" {
			continue
		}
		processed[a.ID] = true
		group := []catalog.Product{a}
		for _, b := range products[i+1:] {
			if processed[b.ID] || b.Model == "" {
				continue
			}
			if scorer.ScoreProducts(a, b) >= threshold {
				processed[b.ID] = true
				group = append(group, b)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// MergeGroup folds every product of group into the one with the most
// variants (lowest id on ties) inside a single transaction: variants and raw
// item references move to the survivor and the others are deleted. A product
// changed since it was read aborts the whole group with ErrVersionConflict.
// It returns the survivor id and how many products were merged into it.
func (e *Engine) MergeGroup(ctx context.Context, group []catalog.Product) (int64, int, error) {
	if len(group) < 2 {
		return 0, 0, nil
	}

	survivor := group[0]
	best := -1
	for _, p := range group {
		n, err := e.store.CountVariants(ctx, p.ID)
		if err != nil {
			return survivor.ID, 0, fmt.Errorf("count variants of product %d: %w", p.ID, err)
		}
		if n > best || (n == best && p.ID < survivor.ID) {
			survivor, best = p, n
		}
	}

	merged := 0
	err := e.store.InTx(ctx, func(tx catalog.Store) error {
		merged = 0
		for _, p := range group {
			if err := tx.LockKey(ctx, fmt.Sprintf("catalog:product:%d", p.ID)); err != nil {
				return fmt.Errorf("lock product %d: %w", p.ID, err)
			}
			cur, err := tx.GetProduct(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("reload product %d: %w", p.ID, err)
			}
			if cur.Version != p.Version {
				return fmt.Errorf("product %d: %w", p.ID, catalog.ErrVersionConflict)
			}
		}

		for _, p := range group {
			if p.ID == survivor.ID {
				continue
			}
			if _, err := tx.ReassignVariants(ctx, p.ID, survivor.ID); err != nil {
				return fmt.Errorf("reassign variants of product %d: %w", p.ID, err)
			}
			if _, err := tx.ReassignRawItems(ctx, p.ID, survivor.ID); err != nil {
				return fmt.Errorf("reassign raw items of product %d: %w", p.ID, err)
			}
			if err := tx.DeleteProduct(ctx, p.ID); err != nil {
				return fmt.Errorf("delete product %d: %w", p.ID, err)
			}
			merged++
		}

		// bump the survivor so writers holding a stale copy conflict
		s := survivor
		if err := tx.UpdateProduct(ctx, &s); err != nil {
			return fmt.Errorf("touch survivor %d: %w", survivor.ID, err)
		}
		return nil
	})
	if err != nil {
		return survivor.ID, 0, err
	}
	return survivor.ID, merged, nil
}
