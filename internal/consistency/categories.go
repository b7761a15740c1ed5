package consistency

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
)

// InferCategories fills the category of uncategorized products from their
// variants' source URLs. Each URL votes for the last path segment that is a
// known category code; the most frequent code wins.
func (e *Engine) InferCategories(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(OpCategories)
	known := make(map[string]bool)

	isCategory := func(code string) (bool, error) {
		if ok, seen := known[code]; seen {
			return ok, nil
		}
		_, err := e.store.GetCategoryByCode(ctx, code)
		switch {
		case err == nil:
			known[code] = true
		case errors.Is(err, catalog.ErrNotFound):
			known[code] = false
		default:
			return false, fmt.Errorf("get category %q: %w", code, err)
		}
		return known[code], nil
	}

	err := e.eachPage(ctx, func(afterID int64, limit int) ([]catalog.Product, error) {
		products, err := e.store.ListProductsWithoutCategory(ctx, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("list uncategorized products: %w", err)
		}
		return products, nil
	}, func(p catalog.Product) {
		report.Scanned++

		category, err := e.inferCategory(ctx, p.ID, isCategory)
		if err == nil && category != "" {
			var updated bool
			updated, err = catalog.MutateProduct(ctx, e.store, p.ID, func(cur *catalog.Product) bool {
				if cur.Category != "" {
					return false
				}
				cur.Category = category
				return true
			})
			if updated {
				report.Updated++
				report.Changes = append(report.Changes, Change{ProductID: p.ID, Field: "category", After: category})
			}
		}
		if err != nil {
			report.Errors[p.ID] = err.Error()
			e.logger.Error().Err(err).Int64("product_id", p.ID).Msg("Failed to infer category")
		}
	})
	if err != nil {
		return e.finish(report, start), err
	}
	return e.finish(report, start), nil
}

func (e *Engine) inferCategory(ctx context.Context, productID int64, isCategory func(string) (bool, error)) (string, error) {
	variants, err := e.store.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("list variants of product %d: %w", productID, err)
	}

	votes := make(map[string]int)
	for _, v := range variants {
		for _, seg := range pathSegments(v.SourceURL) {
			ok, err := isCategory(seg)
			if err != nil {
				return "", err
			}
			if ok {
				votes[seg]++
				break
			}
		}
	}
	return mostVoted(votes), nil
}

// pathSegments returns the lowercased URL path segments, last first
func pathSegments(raw string) []string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var out []string
	for i := len(parts) - 1; i >= 0; i-- {
		if seg := strings.ToLower(parts[i]); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// mostVoted returns the key with the most votes, the smallest key on ties
func mostVoted(votes map[string]int) string {
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := ""
	for _, k := range keys {
		if best == "" || votes[k] > votes[best] {
			best = k
		}
	}
	return best
}
