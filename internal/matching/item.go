package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
	"github.com/easycrawl/catalog-service/internal/normalize"
	"github.com/easycrawl/catalog-service/internal/pricehistory"
	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/similarity"
)

// Outcome is the terminal state of one raw item
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"    // attached to an existing product
	OutcomeCreated    Outcome = "created"    // seeded a new product
	OutcomeUnmappable Outcome = "unmappable" // parked with a reason code
	OutcomeSkipped    Outcome = "skipped"    // already processed
)

// ItemResult describes how one raw item was resolved
type ItemResult struct {
	RawItemID  int64
	Outcome    Outcome
	Reason     catalog.ReasonCode
	ProductID  int64
	VariantID  int64
	Score      float64
	PriceWrite pricehistory.Write
	Extraction normalize.Extraction
}

const (
	brandCandidateFloor    = 10 // below this, widen to the category
	categoryCandidateFloor = 5  // below this, widen to a text search
	searchCandidateLimit   = 50
)

// ProcessRawItem resolves a single raw item. Items already processed are
// skipped, so running it twice never duplicates variants or history rows.
func (e *Engine) ProcessRawItem(ctx context.Context, raw catalog.RawItem) (ItemResult, error) {
	return e.process(ctx, e.registry.Snapshot(), raw, false)
}

// process runs the pipeline for raw inside one transaction. With retry set
// the processed flag is ignored and a successful match clears the unmappable
// record.
func (e *Engine) process(ctx context.Context, snap *registry.Snapshot, raw catalog.RawItem, retry bool) (ItemResult, error) {
	res := ItemResult{RawItemID: raw.ID}

	err := e.store.InTx(ctx, func(tx catalog.Store) error {
		res = ItemResult{RawItemID: raw.ID}
		if !retry {
			cur, err := tx.GetRawItem(ctx, raw.ID)
			if err != nil {
				return fmt.Errorf("get raw item %d: %w", raw.ID, err)
			}
			if cur.Processed {
				res.Outcome = OutcomeSkipped
				return nil
			}
			raw = *cur
		}
		return e.resolve(ctx, tx, snap, raw, retry, &res)
	})
	if err != nil {
		return ItemResult{RawItemID: raw.ID}, err
	}

	if res.Outcome != OutcomeSkipped {
		metrics.RecordRawItem(string(res.Outcome))
	}
	if res.Outcome == OutcomeUnmappable {
		metrics.RecordUnmappable(string(res.Reason))
	}
	return res, nil
}

func (e *Engine) resolve(ctx context.Context, tx catalog.Store, snap *registry.Snapshot, raw catalog.RawItem, retry bool, res *ItemResult) error {
	norm := normalize.New(snap)
	ex := norm.Extract(raw.Title)
	res.Extraction = ex

	code := CategoryFromConfigCode(raw.ConfigCode)
	data := ex.Data()
	data.Category = code

	if strings.TrimSpace(raw.Title) == "" || strings.TrimSpace(raw.Link) == "" {
		return e.park(ctx, tx, raw, catalog.ReasonInvalidData, "missing title or link", data, res)
	}

	category, err := tx.GetCategoryByCode(ctx, code)
	if errors.Is(err, catalog.ErrNotFound) {
		return e.park(ctx, tx, raw, catalog.ReasonInvalidCategory, fmt.Sprintf("unknown category %q", code), data, res)
	}
	if err != nil {
		return fmt.Errorf("get category %q: %w", code, err)
	}

	if ex.Brand == "" {
		return e.park(ctx, tx, raw, catalog.ReasonMissingBrand, "no known brand in title", data, res)
	}

	// serializes product creation per brand so concurrent items of one new
	// model end up on one product
	if err := tx.LockKey(ctx, "catalog:brand:"+strings.ToLower(ex.Brand)); err != nil {
		return fmt.Errorf("lock brand %q: %w", ex.Brand, err)
	}

	candidates, err := e.candidates(ctx, tx, ex, category.Code)
	if err != nil {
		return err
	}

	scorer := similarity.NewScorer(norm, similarity.ModeMatch)
	var best *catalog.Product
	for i := range candidates {
		score := scorer.ScoreCandidate(ex, candidates[i])
		if best == nil || score > res.Score {
			best = &candidates[i]
			res.Score = score
		}
	}
	data.Candidates = len(candidates)
	if best != nil {
		data.BestScore = res.Score
		data.BestProduct = best.ID
	}

	var product *catalog.Product
	switch {
	case best != nil && res.Score >= e.config.MatchThreshold:
		product = best
		res.Outcome = OutcomeMatched
	case ex.ModelRule.LowConfidence() && len(candidates) == 0:
		return e.park(ctx, tx, raw, catalog.ReasonNoSimilarItems, "no candidate products", data, res)
	case ex.ModelRule.LowConfidence():
		return e.park(ctx, tx, raw, catalog.ReasonInsufficientSimilarity,
			fmt.Sprintf("best score %.2f below %.2f", res.Score, e.config.MatchThreshold), data, res)
	default:
		product = &catalog.Product{
			Name:     ex.CleanedTitle,
			Brand:    ex.Brand,
			Model:    ex.Model,
			Category: category.Code,
		}
		if err := tx.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		res.Outcome = OutcomeCreated
	}
	res.ProductID = product.ID

	variant, err := e.upsertVariant(ctx, tx, product.ID, raw, ex)
	if err != nil {
		return err
	}
	res.VariantID = variant.ID

	res.PriceWrite, err = e.recorder.Record(ctx, tx, variant, e.observedAt(raw))
	if err != nil {
		return err
	}

	productID := product.ID
	if err := tx.MarkRawItemProcessed(ctx, raw.ID, &productID); err != nil {
		return fmt.Errorf("mark raw item %d processed: %w", raw.ID, err)
	}
	if retry {
		if err := tx.DeleteUnmappable(ctx, raw.ID); err != nil {
			return fmt.Errorf("delete unmappable %d: %w", raw.ID, err)
		}
	}
	return nil
}

// candidates gathers products worth scoring: same brand first, widened to the
// category and then a text search when the brand alone yields too few.
func (e *Engine) candidates(ctx context.Context, tx catalog.Store, ex normalize.Extraction, category string) ([]catalog.Product, error) {
	seen := make(map[int64]struct{})
	var out []catalog.Product
	add := func(products []catalog.Product) {
		for _, p := range products {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}

	byBrand, err := tx.FindProductsByBrand(ctx, ex.Brand)
	if err != nil {
		return nil, fmt.Errorf("find products by brand: %w", err)
	}
	add(byBrand)

	if len(out) < brandCandidateFloor && category != "" {
		byCategory, err := tx.FindProductsByCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("find products by category: %w", err)
		}
		add(byCategory)
	}

	if len(out) < categoryCandidateFloor && ex.Model != "" {
		found, err := tx.SearchProducts(ctx, ex.Model, searchCandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("search products: %w", err)
		}
		add(found)
	}
	return out, nil
}

// upsertVariant refreshes only the price fields of an existing variant; the
// attributes chosen when it was created are kept.
func (e *Engine) upsertVariant(ctx context.Context, tx catalog.Store, productID int64, raw catalog.RawItem, ex normalize.Extraction) (*catalog.ProductVariant, error) {
	v, err := tx.FindVariant(ctx, productID, raw.WebsiteCode, raw.Link)
	switch {
	case err == nil:
		v.Price = raw.Price
		v.OldPrice = raw.OldPrice
		v.Discount = raw.Discount
		v.PriceString = raw.PriceString
		v.InStock = true
		if err := tx.UpdateVariantPrices(ctx, v); err != nil {
			return nil, fmt.Errorf("update variant %d prices: %w", v.ID, err)
		}
		return v, nil
	case errors.Is(err, catalog.ErrNotFound):
	default:
		return nil, fmt.Errorf("find variant: %w", err)
	}

	rawID := raw.ID
	v = &catalog.ProductVariant{
		ProductID:    productID,
		WebsiteCode:  raw.WebsiteCode,
		SourceURL:    raw.Link,
		Title:        raw.Title,
		Color:        ex.Color,
		Size:         ex.Storage,
		Property1:    ex.RAM,
		Price:        raw.Price,
		OldPrice:     raw.OldPrice,
		Discount:     raw.Discount,
		PriceString:  raw.PriceString,
		InStock:      true,
		RawProductID: &rawID,
	}
	if err := tx.CreateVariant(ctx, v); err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}
	return v, nil
}

func (e *Engine) park(ctx context.Context, tx catalog.Store, raw catalog.RawItem, reason catalog.ReasonCode, detail string, data catalog.ExtractedData, res *ItemResult) error {
	err := tx.RecordUnmappable(ctx, catalog.UnmappableItem{
		RawItemID:     raw.ID,
		Title:         raw.Title,
		Category:      data.Category,
		ConfigCode:    raw.ConfigCode,
		ReasonCode:    reason,
		Reason:        detail,
		ExtractedData: data,
		LastAttempt:   e.Now(),
	})
	if err != nil {
		return fmt.Errorf("record unmappable %d: %w", raw.ID, err)
	}
	if err := tx.MarkRawItemProcessed(ctx, raw.ID, nil); err != nil {
		return fmt.Errorf("mark raw item %d processed: %w", raw.ID, err)
	}
	res.Outcome = OutcomeUnmappable
	res.Reason = reason
	res.ProductID = 0
	return nil
}

func (e *Engine) observedAt(raw catalog.RawItem) time.Time {
	if !raw.CreatedAt.IsZero() {
		return raw.CreatedAt
	}
	return e.Now()
}

// CategoryFromConfigCode returns the category segment of a crawl config code:
// the part after the last slash, the whole code when it has none, "unknown"
// when empty.
func CategoryFromConfigCode(code string) string {
	code = strings.TrimRight(strings.TrimSpace(code), "/")
	if i := strings.LastIndex(code, "/"); i >= 0 {
		code = code[i+1:]
	}
	if code == "" {
		return "unknown"
	}
	return code
}
