// Package catalogtest provides an in-memory catalog.Store for engine tests.
package catalogtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
)

// Store is a catalog.Store kept in memory. InTx snapshots the whole state and
// restores it when the transaction function fails.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	// Now stamps created/modified columns. Defaults to time.Now.
	Now func() time.Time

	nextID     int64
	rawItems   map[int64]catalog.RawItem
	products   map[int64]catalog.Product
	variants   map[int64]catalog.ProductVariant
	history    map[int64]catalog.PriceHistory
	unmappable map[int64]catalog.UnmappableItem
	categories map[string]catalog.Category

	failures map[string]error
	calls    map[string]int
}

var _ catalog.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		Now:        time.Now,
		rawItems:   make(map[int64]catalog.RawItem),
		products:   make(map[int64]catalog.Product),
		variants:   make(map[int64]catalog.ProductVariant),
		history:    make(map[int64]catalog.PriceHistory),
		unmappable: make(map[int64]catalog.UnmappableItem),
		categories: make(map[string]catalog.Category),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// FailOn makes every call of the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	s.calls[method]++
	return s.failures[method]
}

// Calls returns how many times the named method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddCategory registers a known category code.
func (s *Store) AddCategory(code, name string) catalog.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := catalog.Category{ID: s.id(), Code: code, Name: name}
	s.categories[code] = c
	return c
}

// RawItems returns every raw item ordered by id.
func (s *Store) RawItems() []catalog.RawItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.rawItems, func(r catalog.RawItem) int64 { return r.ID })
}

// Products returns every product ordered by id.
func (s *Store) Products() []catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.products, func(p catalog.Product) int64 { return p.ID })
}

// Variants returns every variant ordered by id.
func (s *Store) Variants() []catalog.ProductVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.variants, func(v catalog.ProductVariant) int64 { return v.ID })
}

// PriceHistories returns every price history row ordered by id.
func (s *Store) PriceHistories() []catalog.PriceHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.history, func(h catalog.PriceHistory) int64 { return h.ID })
}

// Unmappables returns every unmappable item ordered by raw item id.
func (s *Store) Unmappables() []catalog.UnmappableItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.unmappable, func(u catalog.UnmappableItem) int64 { return u.RawItemID })
}

func sortedValues[T any](m map[int64]T, key func(T) int64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

func page[T any](items []T, key func(T) int64, afterID int64, limit int) []T {
	out := make([]T, 0)
	for _, it := range items {
		if key(it) <= afterID {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// InTx implements catalog.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx catalog.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.fail("InTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(txView{s}); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// LockKey implements catalog.Store. Transactions already run one at a time.
func (s *Store) LockKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("LockKey")
}

// txView runs nested transactions inline.
type txView struct {
	*Store
}

func (t txView) InTx(ctx context.Context, fn func(tx catalog.Store) error) error {
	return fn(t)
}

type state struct {
	nextID     int64
	rawItems   map[int64]catalog.RawItem
	products   map[int64]catalog.Product
	variants   map[int64]catalog.ProductVariant
	history    map[int64]catalog.PriceHistory
	unmappable map[int64]catalog.UnmappableItem
}

func clone[T any](m map[int64]T) map[int64]T {
	out := make(map[int64]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() state {
	return state{
		nextID:     s.nextID,
		rawItems:   clone(s.rawItems),
		products:   clone(s.products),
		variants:   clone(s.variants),
		history:    clone(s.history),
		unmappable: clone(s.unmappable),
	}
}

func (s *Store) restore(st state) {
	s.nextID = st.nextID
	s.rawItems = st.rawItems
	s.products = st.products
	s.variants = st.variants
	s.history = st.history
	s.unmappable = st.unmappable
}

// Raw items

func (s *Store) ListUnprocessedRawItems(ctx context.Context, filter catalog.RawItemFilter) ([]catalog.RawItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUnprocessedRawItems"); err != nil {
		return nil, err
	}
	var items []catalog.RawItem
	for _, r := range sortedValues(s.rawItems, func(r catalog.RawItem) int64 { return r.ID }) {
		if r.Processed {
			continue
		}
		if filter.Category != "" && !strings.Contains(r.ConfigCode, filter.Category) {
			continue
		}
		items = append(items, r)
	}
	return page(items, func(r catalog.RawItem) int64 { return r.ID }, filter.AfterID, filter.Limit), nil
}

func (s *Store) GetRawItem(ctx context.Context, id int64) (*catalog.RawItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRawItem"); err != nil {
		return nil, err
	}
	r, ok := s.rawItems[id]
	if !ok {
		return nil, fmt.Errorf("raw item %d: %w", id, catalog.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) InsertRawItems(ctx context.Context, items []catalog.RawItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertRawItems"); err != nil {
		return 0, err
	}
	for i := range items {
		items[i].ID = s.id()
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = s.Now()
		}
		s.rawItems[items[i].ID] = items[i]
	}
	return len(items), nil
}

func (s *Store) MarkRawItemProcessed(ctx context.Context, id int64, productID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkRawItemProcessed"); err != nil {
		return err
	}
	r, ok := s.rawItems[id]
	if !ok {
		return fmt.Errorf("raw item %d: %w", id, catalog.ErrNotFound)
	}
	r.Processed = true
	r.MatchedProductID = productID
	s.rawItems[id] = r
	return nil
}

func (s *Store) ReassignRawItems(ctx context.Context, fromProductID, toProductID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReassignRawItems"); err != nil {
		return 0, err
	}
	n := 0
	for id, r := range s.rawItems {
		if r.MatchedProductID != nil && *r.MatchedProductID == fromProductID {
			to := toProductID
			r.MatchedProductID = &to
			s.rawItems[id] = r
			n++
		}
	}
	return n, nil
}

// Products

func (s *Store) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, catalog.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateProduct"); err != nil {
		return err
	}
	now := s.Now()
	p.ID = s.id()
	p.Version = 1
	p.Created = now
	p.Modified = now
	s.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateProduct"); err != nil {
		return err
	}
	cur, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("product %d: %w", p.ID, catalog.ErrNotFound)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("product %d: %w", p.ID, catalog.ErrVersionConflict)
	}
	p.Version++
	p.Created = cur.Created
	p.Modified = s.Now()
	s.products[p.ID] = *p
	return nil
}

// BumpVersion simulates a concurrent writer touching product id.
func (s *Store) BumpVersion(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Version++
		s.products[id] = p
	}
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteProduct"); err != nil {
		return err
	}
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, catalog.ErrNotFound)
	}
	delete(s.products, id)
	// variants cascade, their history with them
	for vid, v := range s.variants {
		if v.ProductID != id {
			continue
		}
		delete(s.variants, vid)
		for hid, h := range s.history {
			if h.VariantID == vid {
				delete(s.history, hid)
			}
		}
	}
	return nil
}

func (s *Store) filterProducts(keep func(catalog.Product) bool) []catalog.Product {
	var out []catalog.Product
	for _, p := range sortedValues(s.products, func(p catalog.Product) int64 { return p.ID }) {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) FindProductsByBrand(ctx context.Context, brand string) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindProductsByBrand"); err != nil {
		return nil, err
	}
	return s.filterProducts(func(p catalog.Product) bool {
		return strings.EqualFold(p.Brand, brand)
	}), nil
}

func (s *Store) FindProductsByCategory(ctx context.Context, category string) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindProductsByCategory"); err != nil {
		return nil, err
	}
	return s.filterProducts(func(p catalog.Product) bool {
		return strings.EqualFold(p.Category, category)
	}), nil
}

func (s *Store) SearchProducts(ctx context.Context, text string, limit int) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SearchProducts"); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}
	out := s.filterProducts(func(p catalog.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Model), needle)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListProducts"); err != nil {
		return nil, err
	}
	all := s.filterProducts(func(catalog.Product) bool { return true })
	return page(all, func(p catalog.Product) int64 { return p.ID }, afterID, limit), nil
}

func (s *Store) ListProductsByBrand(ctx context.Context, brand string, afterID int64, limit int) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListProductsByBrand"); err != nil {
		return nil, err
	}
	all := s.filterProducts(func(p catalog.Product) bool { return strings.EqualFold(p.Brand, brand) })
	return page(all, func(p catalog.Product) int64 { return p.ID }, afterID, limit), nil
}

func (s *Store) ListProductsWithBrandAndModel(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListProductsWithBrandAndModel"); err != nil {
		return nil, err
	}
	all := s.filterProducts(func(p catalog.Product) bool { return p.Brand != "" && p.Model != "" })
	return page(all, func(p catalog.Product) int64 { return p.ID }, afterID, limit), nil
}

func (s *Store) ListProductsWithoutCategory(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListProductsWithoutCategory"); err != nil {
		return nil, err
	}
	all := s.filterProducts(func(p catalog.Product) bool { return p.Category == "" })
	return page(all, func(p catalog.Product) int64 { return p.ID }, afterID, limit), nil
}

func (s *Store) BrandsWithMultipleProducts(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("BrandsWithMultipleProducts"); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range s.products {
		if p.Brand != "" {
			counts[p.Brand]++
		}
	}
	var brands []string
	for b, n := range counts {
		if n > 1 {
			brands = append(brands, b)
		}
	}
	sort.Strings(brands)
	return brands, nil
}

// Variants

func (s *Store) FindVariant(ctx context.Context, productID int64, websiteCode, sourceURL string) (*catalog.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindVariant"); err != nil {
		return nil, err
	}
	for _, v := range sortedValues(s.variants, func(v catalog.ProductVariant) int64 { return v.ID }) {
		if v.ProductID == productID && v.WebsiteCode == websiteCode && v.SourceURL == sourceURL {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("variant of product %d: %w", productID, catalog.ErrNotFound)
}

func (s *Store) CreateVariant(ctx context.Context, v *catalog.ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateVariant"); err != nil {
		return err
	}
	if _, ok := s.products[v.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", v.ProductID, catalog.ErrNotFound)
	}
	now := s.Now()
	v.ID = s.id()
	v.Created = now
	v.Modified = now
	s.variants[v.ID] = *v
	return nil
}

func (s *Store) UpdateVariantPrices(ctx context.Context, v *catalog.ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateVariantPrices"); err != nil {
		return err
	}
	cur, ok := s.variants[v.ID]
	if !ok {
		return fmt.Errorf("variant %d: %w", v.ID, catalog.ErrNotFound)
	}
	cur.Price = v.Price
	cur.OldPrice = v.OldPrice
	cur.Discount = v.Discount
	cur.PriceString = v.PriceString
	cur.InStock = v.InStock
	cur.Modified = s.Now()
	s.variants[v.ID] = cur
	*v = cur
	return nil
}

func (s *Store) ListVariantsByProduct(ctx context.Context, productID int64) ([]catalog.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListVariantsByProduct"); err != nil {
		return nil, err
	}
	var out []catalog.ProductVariant
	for _, v := range sortedValues(s.variants, func(v catalog.ProductVariant) int64 { return v.ID }) {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) CountVariants(ctx context.Context, productID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountVariants"); err != nil {
		return 0, err
	}
	n := 0
	for _, v := range s.variants {
		if v.ProductID == productID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ReassignVariants(ctx context.Context, fromProductID, toProductID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReassignVariants"); err != nil {
		return 0, err
	}
	n := 0
	for id, v := range s.variants {
		if v.ProductID == fromProductID {
			v.ProductID = toProductID
			v.Modified = s.Now()
			s.variants[id] = v
			n++
		}
	}
	return n, nil
}

// Price history

func (s *Store) FindPriceHistory(ctx context.Context, variantID int64, from, to time.Time) (*catalog.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindPriceHistory"); err != nil {
		return nil, err
	}
	for _, h := range sortedValues(s.history, func(h catalog.PriceHistory) int64 { return h.ID }) {
		if h.VariantID == variantID && !h.RecordedAt.Before(from) && h.RecordedAt.Before(to) {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("price history of variant %d: %w", variantID, catalog.ErrNotFound)
}

func (s *Store) InsertPriceHistory(ctx context.Context, h *catalog.PriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertPriceHistory"); err != nil {
		return err
	}
	h.ID = s.id()
	s.history[h.ID] = *h
	return nil
}

func (s *Store) UpdatePriceHistory(ctx context.Context, h *catalog.PriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePriceHistory"); err != nil {
		return err
	}
	if _, ok := s.history[h.ID]; !ok {
		return fmt.Errorf("price history %d: %w", h.ID, catalog.ErrNotFound)
	}
	s.history[h.ID] = *h
	return nil
}

func (s *Store) ListPriceHistory(ctx context.Context, variantID int64) ([]catalog.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListPriceHistory"); err != nil {
		return nil, err
	}
	var out []catalog.PriceHistory
	for _, h := range sortedValues(s.history, func(h catalog.PriceHistory) int64 { return h.ID }) {
		if h.VariantID == variantID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// Unmappable items

func (s *Store) RecordUnmappable(ctx context.Context, item catalog.UnmappableItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecordUnmappable"); err != nil {
		return err
	}
	now := item.LastAttempt
	if now.IsZero() {
		now = s.Now()
	}
	cur, ok := s.unmappable[item.RawItemID]
	if !ok {
		item.Attempts = 1
		item.FirstSeen = now
		item.LastAttempt = now
		s.unmappable[item.RawItemID] = item
		return nil
	}
	item.Attempts = cur.Attempts + 1
	item.FirstSeen = cur.FirstSeen
	item.LastAttempt = now
	s.unmappable[item.RawItemID] = item
	return nil
}

func (s *Store) DeleteUnmappable(ctx context.Context, rawItemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteUnmappable"); err != nil {
		return err
	}
	delete(s.unmappable, rawItemID)
	return nil
}

func (s *Store) ListUnmappableForRetry(ctx context.Context, attemptedBefore time.Time, limit int) ([]catalog.UnmappableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUnmappableForRetry"); err != nil {
		return nil, err
	}
	var out []catalog.UnmappableItem
	for _, u := range s.unmappable {
		if u.LastAttempt.Before(attemptedBefore) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAttempt.Equal(out[j].LastAttempt) {
			return out[i].LastAttempt.Before(out[j].LastAttempt)
		}
		return out[i].RawItemID < out[j].RawItemID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListUnmappableByReason(ctx context.Context, reason catalog.ReasonCode, afterID int64, limit int) ([]catalog.UnmappableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUnmappableByReason"); err != nil {
		return nil, err
	}
	var out []catalog.UnmappableItem
	for _, u := range sortedValues(s.unmappable, func(u catalog.UnmappableItem) int64 { return u.RawItemID }) {
		if u.ReasonCode == reason {
			out = append(out, u)
		}
	}
	return page(out, func(u catalog.UnmappableItem) int64 { return u.RawItemID }, afterID, limit), nil
}

// Categories

func (s *Store) GetCategoryByCode(ctx context.Context, code string) (*catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetCategoryByCode"); err != nil {
		return nil, err
	}
	c, ok := s.categories[code]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", code, catalog.ErrNotFound)
	}
	return &c, nil
}
