package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a looked up row does not exist
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a product was modified concurrently
	ErrVersionConflict = errors.New("version conflict")
)

// RawItemFilter selects unprocessed raw items using keyset paging
type RawItemFilter struct {
	Category string // substring of config_code, empty = all
	AfterID  int64
	Limit    int
}

// RawItemStore reads and resolves scraped raw items
type RawItemStore interface {
	ListUnprocessedRawItems(ctx context.Context, filter RawItemFilter) ([]RawItem, error)
	GetRawItem(ctx context.Context, id int64) (*RawItem, error)
	InsertRawItems(ctx context.Context, items []RawItem) (int, error)
	MarkRawItemProcessed(ctx context.Context, id int64, productID *int64) error
	// ReassignRawItems points every raw item matched to fromProductID at toProductID
	ReassignRawItems(ctx context.Context, fromProductID, toProductID int64) (int, error)
}

// ProductStore persists catalog products
type ProductStore interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	// UpdateProduct writes p if its Version still matches and bumps it, else ErrVersionConflict
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id int64) error

	FindProductsByBrand(ctx context.Context, brand string) ([]Product, error)
	FindProductsByCategory(ctx context.Context, category string) ([]Product, error)
	SearchProducts(ctx context.Context, text string, limit int) ([]Product, error)

	ListProducts(ctx context.Context, afterID int64, limit int) ([]Product, error)
	// ListProductsByBrand pages FindProductsByBrand by id
	ListProductsByBrand(ctx context.Context, brand string, afterID int64, limit int) ([]Product, error)
	ListProductsWithBrandAndModel(ctx context.Context, afterID int64, limit int) ([]Product, error)
	ListProductsWithoutCategory(ctx context.Context, afterID int64, limit int) ([]Product, error)
	// BrandsWithMultipleProducts returns brands that more than one product carries
	BrandsWithMultipleProducts(ctx context.Context) ([]string, error)
}

// VariantStore persists product variants
type VariantStore interface {
	FindVariant(ctx context.Context, productID int64, websiteCode, sourceURL string) (*ProductVariant, error)
	CreateVariant(ctx context.Context, v *ProductVariant) error
	// UpdateVariantPrices refreshes only the price related fields of v
	UpdateVariantPrices(ctx context.Context, v *ProductVariant) error
	ListVariantsByProduct(ctx context.Context, productID int64) ([]ProductVariant, error)
	CountVariants(ctx context.Context, productID int64) (int, error)
	ReassignVariants(ctx context.Context, fromProductID, toProductID int64) (int, error)
}

// PriceHistoryStore persists daily price observations
type PriceHistoryStore interface {
	// FindPriceHistory returns the observation of variantID recorded in [from, to)
	FindPriceHistory(ctx context.Context, variantID int64, from, to time.Time) (*PriceHistory, error)
	InsertPriceHistory(ctx context.Context, h *PriceHistory) error
	UpdatePriceHistory(ctx context.Context, h *PriceHistory) error
	ListPriceHistory(ctx context.Context, variantID int64) ([]PriceHistory, error)
}

// UnmappableStore tracks raw items parked for remediation
type UnmappableStore interface {
	// RecordUnmappable creates the item or increments its attempts
	RecordUnmappable(ctx context.Context, item UnmappableItem) error
	DeleteUnmappable(ctx context.Context, rawItemID int64) error
	// ListUnmappableForRetry returns items last attempted before the cutoff, oldest attempt first
	ListUnmappableForRetry(ctx context.Context, attemptedBefore time.Time, limit int) ([]UnmappableItem, error)
	ListUnmappableByReason(ctx context.Context, reason ReasonCode, afterID int64, limit int) ([]UnmappableItem, error)
}

// CategoryStore resolves category codes
type CategoryStore interface {
	GetCategoryByCode(ctx context.Context, code string) (*Category, error)
}

// Store is the full catalog persistence contract
type Store interface {
	RawItemStore
	ProductStore
	VariantStore
	PriceHistoryStore
	UnmappableStore
	CategoryStore

	// InTx runs fn against a transactional view of the store. Returning an error
	// rolls back every write fn made.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// LockKey takes a lock on key held until the surrounding transaction ends.
	// Outside InTx it is released immediately.
	LockKey(ctx context.Context, key string) error
}
