package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easycrawl/catalog-service/internal/catalog"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// CatalogStore is the PostgreSQL catalog.Store
type CatalogStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore creates a store on p
func NewCatalogStore(p *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: p, q: p}
}

// InTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *CatalogStore) InTx(ctx context.Context, fn func(tx catalog.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&CatalogStore{pool: s.pool, q: tx, inTx: true})
	})
}

// LockKey takes a transaction scoped advisory lock on key
func (s *CatalogStore) LockKey(ctx context.Context, key string) error {
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, catalog.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}

// Raw items

const rawItemCols = `id, config_code, website_code, title, link, price_string, price, old_price, discount,
	processed, matched_product_id, created_at`

func scanRawItem(row pgx.Row) (catalog.RawItem, error) {
	var r catalog.RawItem
	err := row.Scan(&r.ID, &r.ConfigCode, &r.WebsiteCode, &r.Title, &r.Link, &r.PriceString,
		&r.Price, &r.OldPrice, &r.Discount, &r.Processed, &r.MatchedProductID, &r.CreatedAt)
	return r, err
}

func (s *CatalogStore) ListUnprocessedRawItems(ctx context.Context, filter catalog.RawItemFilter) ([]catalog.RawItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+rawItemCols+`
		FROM raw_items
		WHERE NOT processed
		  AND id > $1
		  AND ($2 = '' OR strpos(config_code, $2) > 0)
		ORDER BY id
		LIMIT $3`, filter.AfterID, filter.Category, limitArg(filter.Limit))
	items, err := collect(rows, err, scanRawItem)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed raw items: %w", err)
	}
	return items, nil
}

func (s *CatalogStore) GetRawItem(ctx context.Context, id int64) (*catalog.RawItem, error) {
	r, err := scanRawItem(s.q.QueryRow(ctx, `SELECT `+rawItemCols+` FROM raw_items WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "raw item %d", id)
	}
	return &r, nil
}

func (s *CatalogStore) InsertRawItems(ctx context.Context, items []catalog.RawItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range items {
		batch.Queue(`
			INSERT INTO raw_items (config_code, website_code, title, link, price_string, price, old_price, discount,
				processed, matched_product_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11::timestamptz, now()))
			RETURNING id, created_at`,
			r.ConfigCode, r.WebsiteCode, r.Title, r.Link, r.PriceString, r.Price, r.OldPrice, r.Discount,
			r.Processed, r.MatchedProductID, timeArg(r.CreatedAt))
	}

	br := s.q.SendBatch(ctx, batch)
	defer br.Close()
	for i := range items {
		if err := br.QueryRow().Scan(&items[i].ID, &items[i].CreatedAt); err != nil {
			return i, fmt.Errorf("insert raw item %d of %d: %w", i+1, len(items), err)
		}
	}
	return len(items), nil
}

func (s *CatalogStore) MarkRawItemProcessed(ctx context.Context, id int64, productID *int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE raw_items SET processed = true, matched_product_id = $2 WHERE id = $1`, id, productID)
	if err != nil {
		return fmt.Errorf("mark raw item %d processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("raw item %d: %w", id, catalog.ErrNotFound)
	}
	return nil
}

func (s *CatalogStore) ReassignRawItems(ctx context.Context, fromProductID, toProductID int64) (int, error) {
	tag, err := s.q.Exec(ctx, `UPDATE raw_items SET matched_product_id = $2 WHERE matched_product_id = $1`, fromProductID, toProductID)
	if err != nil {
		return 0, fmt.Errorf("reassign raw items of product %d: %w", fromProductID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Products

const productCols = `id, name, brand, model, category, subcategory, description, specifications, version, created, modified`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Model, &p.Category, &p.Subcategory,
		&p.Description, &p.Specifications, &p.Version, &p.Created, &p.Modified)
	return p, err
}

func (s *CatalogStore) queryProducts(ctx context.Context, what, sql string, args ...any) ([]catalog.Product, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	products, err := collect(rows, err, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return products, nil
}

func (s *CatalogStore) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	p, err := scanProduct(s.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "product %d", id)
	}
	return &p, nil
}

func (s *CatalogStore) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO products (name, brand, model, category, subcategory, description, specifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version, created, modified`,
		p.Name, p.Brand, p.Model, p.Category, p.Subcategory, p.Description, p.Specifications,
	).Scan(&p.ID, &p.Version, &p.Created, &p.Modified)
	if err != nil {
		return fmt.Errorf("create product %q: %w", p.Name, err)
	}
	return nil
}

func (s *CatalogStore) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	err := s.q.QueryRow(ctx, `
		UPDATE products
		SET name = $2, brand = $3, model = $4, category = $5, subcategory = $6,
		    description = $7, specifications = $8, version = version + 1, modified = now()
		WHERE id = $1 AND version = $9
		RETURNING version, created, modified`,
		p.ID, p.Name, p.Brand, p.Model, p.Category, p.Subcategory, p.Description, p.Specifications, p.Version,
	).Scan(&p.Version, &p.Created, &p.Modified)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}

	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check product %d: %w", p.ID, err)
	}
	if !exists {
		return fmt.Errorf("product %d: %w", p.ID, catalog.ErrNotFound)
	}
	return fmt.Errorf("product %d: %w", p.ID, catalog.ErrVersionConflict)
}

func (s *CatalogStore) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, catalog.ErrNotFound)
	}
	return nil
}

func (s *CatalogStore) FindProductsByBrand(ctx context.Context, brand string) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "find products by brand",
		`SELECT `+productCols+` FROM products WHERE lower(brand) = lower($1) ORDER BY id`, brand)
}

func (s *CatalogStore) FindProductsByCategory(ctx context.Context, category string) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "find products by category",
		`SELECT `+productCols+` FROM products WHERE lower(category) = lower($1) ORDER BY id`, category)
}

// SearchProducts matches text inside name or model, closest names first
func (s *CatalogStore) SearchProducts(ctx context.Context, text string, limit int) ([]catalog.Product, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}
	return s.queryProducts(ctx, "search products", `
		SELECT `+productCols+`
		FROM products
		WHERE strpos(lower(name), $1) > 0 OR strpos(lower(model), $1) > 0
		ORDER BY similarity(lower(name), $1) DESC, id
		LIMIT $2`, needle, limitArg(limit))
}

func (s *CatalogStore) ListProducts(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "list products",
		`SELECT `+productCols+` FROM products WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limitArg(limit))
}

func (s *CatalogStore) ListProductsByBrand(ctx context.Context, brand string, afterID int64, limit int) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "list products by brand", `
		SELECT `+productCols+` FROM products
		WHERE lower(brand) = lower($1) AND id > $2
		ORDER BY id LIMIT $3`, brand, afterID, limitArg(limit))
}

func (s *CatalogStore) ListProductsWithBrandAndModel(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "list products with brand and model", `
		SELECT `+productCols+` FROM products
		WHERE id > $1 AND brand <> '' AND model <> ''
		ORDER BY id LIMIT $2`, afterID, limitArg(limit))
}

func (s *CatalogStore) ListProductsWithoutCategory(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	return s.queryProducts(ctx, "list products without category", `
		SELECT `+productCols+` FROM products
		WHERE id > $1 AND category = ''
		ORDER BY id LIMIT $2`, afterID, limitArg(limit))
}

func (s *CatalogStore) BrandsWithMultipleProducts(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT brand FROM products
		WHERE brand <> ''
		GROUP BY brand
		HAVING count(*) > 1
		ORDER BY brand`)
	if err != nil {
		return nil, fmt.Errorf("list brands with multiple products: %w", err)
	}
	brands, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list brands with multiple products: %w", err)
	}
	return brands, nil
}

// Variants

const variantCols = `id, product_id, website_code, source_url, title, color, size, property1, property2, property3,
	property4, price, old_price, discount, price_string, currency, in_stock, raw_product_id, created, modified`

func scanVariant(row pgx.Row) (catalog.ProductVariant, error) {
	var v catalog.ProductVariant
	err := row.Scan(&v.ID, &v.ProductID, &v.WebsiteCode, &v.SourceURL, &v.Title, &v.Color, &v.Size,
		&v.Property1, &v.Property2, &v.Property3, &v.Property4, &v.Price, &v.OldPrice, &v.Discount,
		&v.PriceString, &v.Currency, &v.InStock, &v.RawProductID, &v.Created, &v.Modified)
	return v, err
}

func (s *CatalogStore) FindVariant(ctx context.Context, productID int64, websiteCode, sourceURL string) (*catalog.ProductVariant, error) {
	v, err := scanVariant(s.q.QueryRow(ctx, `
		SELECT `+variantCols+` FROM product_variants
		WHERE product_id = $1 AND website_code = $2 AND source_url = $3
		ORDER BY id LIMIT 1`, productID, websiteCode, sourceURL))
	if err != nil {
		return nil, notFound(err, "variant of product %d", productID)
	}
	return &v, nil
}

func (s *CatalogStore) CreateVariant(ctx context.Context, v *catalog.ProductVariant) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO product_variants (product_id, website_code, source_url, title, color, size,
			property1, property2, property3, property4, price, old_price, discount, price_string,
			currency, in_stock, raw_product_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created, modified`,
		v.ProductID, v.WebsiteCode, v.SourceURL, v.Title, v.Color, v.Size,
		v.Property1, v.Property2, v.Property3, v.Property4, v.Price, v.OldPrice, v.Discount, v.PriceString,
		v.Currency, v.InStock, v.RawProductID,
	).Scan(&v.ID, &v.Created, &v.Modified)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("product %d: %w", v.ProductID, catalog.ErrNotFound)
		}
		return fmt.Errorf("create variant of product %d: %w", v.ProductID, err)
	}
	return nil
}

func (s *CatalogStore) UpdateVariantPrices(ctx context.Context, v *catalog.ProductVariant) error {
	updated, err := scanVariant(s.q.QueryRow(ctx, `
		UPDATE product_variants
		SET price = $2, old_price = $3, discount = $4, price_string = $5, in_stock = $6, modified = now()
		WHERE id = $1
		RETURNING `+variantCols,
		v.ID, v.Price, v.OldPrice, v.Discount, v.PriceString, v.InStock))
	if err != nil {
		return notFound(err, "variant %d", v.ID)
	}
	*v = updated
	return nil
}

func (s *CatalogStore) ListVariantsByProduct(ctx context.Context, productID int64) ([]catalog.ProductVariant, error) {
	rows, err := s.q.Query(ctx, `SELECT `+variantCols+` FROM product_variants WHERE product_id = $1 ORDER BY id`, productID)
	variants, err := collect(rows, err, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("list variants of product %d: %w", productID, err)
	}
	return variants, nil
}

func (s *CatalogStore) CountVariants(ctx context.Context, productID int64) (int, error) {
	var n int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM product_variants WHERE product_id = $1`, productID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count variants of product %d: %w", productID, err)
	}
	return n, nil
}

func (s *CatalogStore) ReassignVariants(ctx context.Context, fromProductID, toProductID int64) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE product_variants SET product_id = $2, modified = now()
		WHERE product_id = $1`, fromProductID, toProductID)
	if err != nil {
		return 0, fmt.Errorf("reassign variants of product %d: %w", fromProductID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Price history

const priceHistoryCols = `id, variant_id, website_code, price, old_price, discount, price_string, recorded_at`

func scanPriceHistory(row pgx.Row) (catalog.PriceHistory, error) {
	var h catalog.PriceHistory
	err := row.Scan(&h.ID, &h.VariantID, &h.WebsiteCode, &h.Price, &h.OldPrice, &h.Discount, &h.PriceString, &h.RecordedAt)
	return h, err
}

func (s *CatalogStore) FindPriceHistory(ctx context.Context, variantID int64, from, to time.Time) (*catalog.PriceHistory, error) {
	h, err := scanPriceHistory(s.q.QueryRow(ctx, `
		SELECT `+priceHistoryCols+` FROM price_history
		WHERE variant_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY id LIMIT 1`, variantID, from, to))
	if err != nil {
		return nil, notFound(err, "price history of variant %d", variantID)
	}
	return &h, nil
}

func (s *CatalogStore) InsertPriceHistory(ctx context.Context, h *catalog.PriceHistory) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO price_history (variant_id, website_code, price, old_price, discount, price_string, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		h.VariantID, h.WebsiteCode, h.Price, h.OldPrice, h.Discount, h.PriceString, h.RecordedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("insert price history of variant %d: %w", h.VariantID, err)
	}
	return nil
}

func (s *CatalogStore) UpdatePriceHistory(ctx context.Context, h *catalog.PriceHistory) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE price_history
		SET price = $2, old_price = $3, discount = $4, price_string = $5, recorded_at = $6
		WHERE id = $1`,
		h.ID, h.Price, h.OldPrice, h.Discount, h.PriceString, h.RecordedAt)
	if err != nil {
		return fmt.Errorf("update price history %d: %w", h.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("price history %d: %w", h.ID, catalog.ErrNotFound)
	}
	return nil
}

func (s *CatalogStore) ListPriceHistory(ctx context.Context, variantID int64) ([]catalog.PriceHistory, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+priceHistoryCols+` FROM price_history
		WHERE variant_id = $1
		ORDER BY recorded_at, id`, variantID)
	history, err := collect(rows, err, scanPriceHistory)
	if err != nil {
		return nil, fmt.Errorf("list price history of variant %d: %w", variantID, err)
	}
	return history, nil
}

// Unmappable items

const unmappableCols = `raw_item_id, title, category, config_code, reason_code, reason, extracted_data,
	attempts, first_seen, last_attempt`

func scanUnmappable(row pgx.Row) (catalog.UnmappableItem, error) {
	var (
		u      catalog.UnmappableItem
		reason string
	)
	err := row.Scan(&u.RawItemID, &u.Title, &u.Category, &u.ConfigCode, &reason, &u.Reason,
		&u.ExtractedData, &u.Attempts, &u.FirstSeen, &u.LastAttempt)
	u.ReasonCode = catalog.ReasonCode(reason)
	return u, err
}

func (s *CatalogStore) RecordUnmappable(ctx context.Context, item catalog.UnmappableItem) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO unmappable_items (raw_item_id, title, category, config_code, reason_code, reason,
			extracted_data, attempts, first_seen, last_attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1,
			COALESCE($8::timestamptz, now()), COALESCE($8::timestamptz, now()))
		ON CONFLICT (raw_item_id) DO UPDATE
		SET title          = EXCLUDED.title,
		    category       = EXCLUDED.category,
		    config_code    = EXCLUDED.config_code,
		    reason_code    = EXCLUDED.reason_code,
		    reason         = EXCLUDED.reason,
		    extracted_data = EXCLUDED.extracted_data,
		    attempts       = unmappable_items.attempts + 1,
		    last_attempt   = EXCLUDED.last_attempt`,
		item.RawItemID, item.Title, item.Category, item.ConfigCode, string(item.ReasonCode), item.Reason,
		item.ExtractedData, timeArg(item.LastAttempt))
	if err != nil {
		return fmt.Errorf("record unmappable raw item %d: %w", item.RawItemID, err)
	}
	return nil
}

func (s *CatalogStore) DeleteUnmappable(ctx context.Context, rawItemID int64) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM unmappable_items WHERE raw_item_id = $1`, rawItemID); err != nil {
		return fmt.Errorf("delete unmappable raw item %d: %w", rawItemID, err)
	}
	return nil
}

func (s *CatalogStore) ListUnmappableForRetry(ctx context.Context, attemptedBefore time.Time, limit int) ([]catalog.UnmappableItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+unmappableCols+` FROM unmappable_items
		WHERE last_attempt < $1
		ORDER BY last_attempt, raw_item_id
		LIMIT $2`, attemptedBefore, limitArg(limit))
	items, err := collect(rows, err, scanUnmappable)
	if err != nil {
		return nil, fmt.Errorf("list unmappable items for retry: %w", err)
	}
	return items, nil
}

func (s *CatalogStore) ListUnmappableByReason(ctx context.Context, reason catalog.ReasonCode, afterID int64, limit int) ([]catalog.UnmappableItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+unmappableCols+` FROM unmappable_items
		WHERE reason_code = $1 AND raw_item_id > $2
		ORDER BY raw_item_id
		LIMIT $3`, string(reason), afterID, limitArg(limit))
	items, err := collect(rows, err, scanUnmappable)
	if err != nil {
		return nil, fmt.Errorf("list unmappable items with reason %s: %w", reason, err)
	}
	return items, nil
}

// Categories

func (s *CatalogStore) GetCategoryByCode(ctx context.Context, code string) (*catalog.Category, error) {
	var c catalog.Category
	err := s.q.QueryRow(ctx, `SELECT id, code, name FROM categories WHERE code = lower($1)`, code).Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		return nil, notFound(err, "category %q", code)
	}
	return &c, nil
}
