package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/normalize"
)

// ReextractBrandsAndModels runs brand and model extraction on every product
// name with the current registry and stores values that changed. Extraction
// that finds nothing never clears an existing value.
func (e *Engine) ReextractBrandsAndModels(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(OpBrands)
	norm := normalize.New(e.registry.Snapshot())

	err := e.eachPage(ctx, func(afterID int64, limit int) ([]catalog.Product, error) {
		products, err := e.store.ListProducts(ctx, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		return products, nil
	}, func(p catalog.Product) {
		report.Scanned++

		var changes []Change
		updated, err := catalog.MutateProduct(ctx, e.store, p.ID, func(cur *catalog.Product) bool {
			changes = reextract(norm, cur)
			return len(changes) > 0
		})
		if err != nil {
			report.Errors[p.ID] = err.Error()
			e.logger.Error().Err(err).Int64("product_id", p.ID).Msg("Failed to update extracted brand and model")
			return
		}
		if updated {
			report.Updated++
			report.Changes = append(report.Changes, changes...)
		}
	})
	if err != nil {
		return e.finish(report, start), err
	}
	return e.finish(report, start), nil
}

// reextract applies fresh extraction to p and returns the audited changes
func reextract(norm *normalize.Normalizer, p *catalog.Product) []Change {
	var changes []Change

	brand := norm.ExtractBrand(p.Name)
	if brand != "" && brand != p.Brand {
		changes = append(changes, Change{ProductID: p.ID, Field: "brand", Before: p.Brand, After: brand})
		p.Brand = brand
	}
	if brand == "" {
		brand = p.Brand
	}

	model := norm.StandardizeModelName(brand, norm.ExtractModel(p.Name, brand))
	if model != "" && model != p.Model {
		changes = append(changes, Change{ProductID: p.ID, Field: "model", Before: p.Model, After: model})
		p.Model = model
	}
	return changes
}
