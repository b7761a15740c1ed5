// Package catalog holds the product catalog domain types shared by the matching,
// consistency and price history engines, and the store contracts they depend on.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawItem is a scraped listing waiting to be reconciled into the catalog
type RawItem struct {
	ID               int64               `json:"id"`
	ConfigCode       string              `json:"config_code"`  // e.g. "shop.ba/smartphones"
	WebsiteCode      string              `json:"website_code"` // source retailer
	Title            string              `json:"title"`
	Link             string              `json:"link"`
	PriceString      string              `json:"price_string"` // price as shown on the page
	Price            decimal.NullDecimal `json:"price"`
	OldPrice         decimal.NullDecimal `json:"old_price"`
	Discount         decimal.NullDecimal `json:"discount"`
	Processed        bool                `json:"processed"`
	MatchedProductID *int64              `json:"matched_product_id"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Product is a logical catalog product grouping retailer variants
type Product struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Brand          string    `json:"brand"`
	Model          string    `json:"model"`
	Category       string    `json:"category"`
	Subcategory    string    `json:"subcategory"`
	Description    string    `json:"description"`
	Specifications string    `json:"specifications"`
	Version        int       `json:"version"` // optimistic concurrency token
	Created        time.Time `json:"created"`
	Modified       time.Time `json:"modified"`
}

// ProductVariant is one retailer/attribute specific listing of a product
type ProductVariant struct {
	ID           int64               `json:"id"`
	ProductID    int64               `json:"product_id"`
	WebsiteCode  string              `json:"website_code"`
	SourceURL    string              `json:"source_url"`
	Title        string              `json:"title"`
	Color        string              `json:"color"`
	Size         string              `json:"size"` // storage capacity for electronics
	Property1    string              `json:"property1"`
	Property2    string              `json:"property2"`
	Property3    string              `json:"property3"`
	Property4    string              `json:"property4"`
	Price        decimal.NullDecimal `json:"price"`
	OldPrice     decimal.NullDecimal `json:"old_price"`
	Discount     decimal.NullDecimal `json:"discount"`
	PriceString  string              `json:"price_string"`
	Currency     string              `json:"currency"`
	InStock      bool                `json:"in_stock"`
	RawProductID *int64              `json:"raw_product_id"`
	Created      time.Time           `json:"created"`
	Modified     time.Time           `json:"modified"`
}

// PriceHistory is the single daily price observation of a variant
type PriceHistory struct {
	ID          int64               `json:"id"`
	VariantID   int64               `json:"variant_id"`
	WebsiteCode string              `json:"website_code"`
	Price       decimal.NullDecimal `json:"price"`
	OldPrice    decimal.NullDecimal `json:"old_price"`
	Discount    decimal.NullDecimal `json:"discount"`
	PriceString string              `json:"price_string"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// ReasonCode classifies why a raw item could not be mapped
type ReasonCode string

const (
	ReasonMissingBrand           ReasonCode = "MISSING_BRAND"
	ReasonInsufficientSimilarity ReasonCode = "INSUFFICIENT_SIMILARITY"
	ReasonInvalidData            ReasonCode = "INVALID_DATA"
	ReasonInvalidCategory        ReasonCode = "INVALID_CATEGORY"
	ReasonNoSimilarItems         ReasonCode = "NO_SIMILAR_ITEMS"
	ReasonOther                  ReasonCode = "OTHER"
)

// ReasonCodes lists every reason code, in reporting order
var ReasonCodes = []ReasonCode{
	ReasonMissingBrand,
	ReasonInsufficientSimilarity,
	ReasonInvalidData,
	ReasonInvalidCategory,
	ReasonNoSimilarItems,
	ReasonOther,
}

// ExtractedData is the normalizer output persisted with an unmappable item for diagnosis
type ExtractedData struct {
	CleanedTitle string  `json:"cleanedTitle"`
	Brand        string  `json:"brand,omitempty"`
	Model        string  `json:"model,omitempty"`
	ModelRule    string  `json:"modelRule,omitempty"`
	Color        string  `json:"color,omitempty"`
	Storage      string  `json:"storage,omitempty"`
	RAM          string  `json:"ram,omitempty"`
	Category     string  `json:"category,omitempty"`
	Candidates   int     `json:"candidates"`
	BestScore    float64 `json:"bestScore,omitempty"`
	BestProduct  int64   `json:"bestProductId,omitempty"`
}

// UnmappableItem parks a raw item that could not be attributed to a product
type UnmappableItem struct {
	RawItemID     int64         `json:"raw_item_id"`
	Title         string        `json:"title"`
	Category      string        `json:"category"`
	ConfigCode    string        `json:"config_code"`
	ReasonCode    ReasonCode    `json:"reason_code"`
	Reason        string        `json:"reason"`
	ExtractedData ExtractedData `json:"extracted_data"`
	Attempts      int           `json:"attempts"`
	FirstSeen     time.Time     `json:"first_seen"`
	LastAttempt   time.Time     `json:"last_attempt"`
}

// Category is a known catalog category addressed by its code (URL slug)
type Category struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
