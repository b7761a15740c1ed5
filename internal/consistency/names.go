package consistency

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
)

var capacityRe = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(gb|tb)?\s*$`)

// NormalizeNames rebuilds product names as "brand model". Smartphones also get
// the RAM+storage combination most common among their variants.
func (e *Engine) NormalizeNames(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(OpNames)

	err := e.eachPage(ctx, func(afterID int64, limit int) ([]catalog.Product, error) {
		products, err := e.store.ListProductsWithBrandAndModel(ctx, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("list products with brand and model: %w", err)
		}
		return products, nil
	}, func(p catalog.Product) {
		report.Scanned++

		combo := ""
		if strings.EqualFold(p.Category, e.config.SmartphoneCategory) {
			variants, err := e.store.ListVariantsByProduct(ctx, p.ID)
			if err != nil {
				report.Errors[p.ID] = fmt.Errorf("list variants of product %d: %w", p.ID, err).Error()
				return
			}
			combo = MemoryCombo(variants)
		}

		var change Change
		updated, err := catalog.MutateProduct(ctx, e.store, p.ID, func(cur *catalog.Product) bool {
			name := BuildName(cur.Brand, cur.Model, combo)
			if name == "" || name == cur.Name {
				return false
			}
			change = Change{ProductID: cur.ID, Field: "name", Before: cur.Name, After: name}
			cur.Name = name
			return true
		})
		if err != nil {
			report.Errors[p.ID] = err.Error()
			e.logger.Error().Err(err).Int64("product_id", p.ID).Msg("Failed to normalize product name")
			return
		}
		if updated {
			report.Updated++
			report.Changes = append(report.Changes, change)
		}
	})
	if err != nil {
		return e.finish(report, start), err
	}
	return e.finish(report, start), nil
}

// BuildName joins brand, model and an optional memory combination
func BuildName(brand, model, combo string) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{brand, model, combo} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// MemoryCombo returns the most frequent "{ram}+{storage}GB" among variants
// that carry both values, or "" when none does. Ties go to the combination
// seen first.
func MemoryCombo(variants []catalog.ProductVariant) string {
	counts := make(map[string]int)
	var order []string
	for _, v := range variants {
		ram, _, ok := capacity(v.Property1)
		if !ok {
			continue
		}
		storage, unit, ok := capacity(v.Size)
		if !ok {
			continue
		}
		combo := fmt.Sprintf("%s+%s%s", ram, storage, unit)
		if counts[combo] == 0 {
			order = append(order, combo)
		}
		counts[combo]++
	}

	best := ""
	for _, c := range order {
		if best == "" || counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// capacity splits "128GB" into its number and upper-cased unit, GB by default
func capacity(s string) (string, string, bool) {
	m := capacityRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	unit := strings.ToUpper(m[2])
	if unit == "" {
		unit = "GB"
	}
	return strings.ReplaceAll(m[1], ",", "."), unit, true
}
