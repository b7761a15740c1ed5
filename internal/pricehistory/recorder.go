// Package pricehistory keeps one price snapshot per variant per calendar day.
package pricehistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
)

// Write describes what Record did
type Write string

const (
	WriteInserted  Write = "inserted"
	WriteUpdated   Write = "updated"
	WriteUnchanged Write = "unchanged"
)

// Recorder writes daily price observations. The zero value records in the
// location of each observation.
type Recorder struct {
	// Location overrides the timezone used to find calendar day boundaries
	Location *time.Location
}

// NewRecorder creates a recorder using loc for day boundaries, nil keeps the
// observation's own location.
func NewRecorder(loc *time.Location) *Recorder {
	return &Recorder{Location: loc}
}

// DayWindow returns [start of day, start of next day) around t
func (r *Recorder) DayWindow(t time.Time) (time.Time, time.Time) {
	if r != nil && r.Location != nil {
		t = t.In(r.Location)
	}
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Record stores the current prices of v as its observation for the day of
// observedAt. An existing row of that day is updated in place when any price
// field differs and left alone otherwise.
func (r *Recorder) Record(ctx context.Context, store catalog.PriceHistoryStore, v *catalog.ProductVariant, observedAt time.Time) (Write, error) {
	if v == nil || v.ID == 0 {
		return "", errors.New("record price history: variant has no id")
	}
	from, to := r.DayWindow(observedAt)

	existing, err := store.FindPriceHistory(ctx, v.ID, from, to)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return "", fmt.Errorf("find price history for variant %d: %w", v.ID, err)
	}

	if existing != nil {
		if samePrices(existing, v) {
			metrics.RecordPriceHistoryWrite(string(WriteUnchanged))
			return WriteUnchanged, nil
		}
		existing.Price = v.Price
		existing.OldPrice = v.OldPrice
		existing.Discount = v.Discount
		existing.PriceString = v.PriceString
		existing.RecordedAt = observedAt
		if err := store.UpdatePriceHistory(ctx, existing); err != nil {
			return "", fmt.Errorf("update price history %d: %w", existing.ID, err)
		}
		metrics.RecordPriceHistoryWrite(string(WriteUpdated))
		return WriteUpdated, nil
	}

	h := &catalog.PriceHistory{
		VariantID:   v.ID,
		WebsiteCode: v.WebsiteCode,
		Price:       v.Price,
		OldPrice:    v.OldPrice,
		Discount:    v.Discount,
		PriceString: v.PriceString,
		RecordedAt:  observedAt,
	}
	if err := store.InsertPriceHistory(ctx, h); err != nil {
		return "", fmt.Errorf("insert price history for variant %d: %w", v.ID, err)
	}
	metrics.RecordPriceHistoryWrite(string(WriteInserted))
	return WriteInserted, nil
}

func samePrices(h *catalog.PriceHistory, v *catalog.ProductVariant) bool {
	return equalNull(h.Price, v.Price) &&
		equalNull(h.OldPrice, v.OldPrice) &&
		equalNull(h.Discount, v.Discount) &&
		h.PriceString == v.PriceString
}

func equalNull(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
