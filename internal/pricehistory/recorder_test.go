package pricehistory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/catalog/catalogtest"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newVariant(t *testing.T, store *catalogtest.Store) *catalog.ProductVariant {
	t.Helper()
	ctx := context.Background()
	p := &catalog.Product{Name: "samsung galaxy s21", Brand: "Samsung", Model: "S21"}
	require.NoError(t, store.CreateProduct(ctx, p))
	v := &catalog.ProductVariant{
		ProductID:   p.ID,
		WebsiteCode: "shop.ba",
		SourceURL:   "https://shop.ba/smartphones/s21",
		Price:       price("899.00"),
		PriceString: "899,00 KM",
	}
	require.NoError(t, store.CreateVariant(ctx, v))
	return v
}

func TestDayWindow(t *testing.T) {
	sarajevo := time.FixedZone("CET", 3600)
	tests := []struct {
		name      string
		loc       *time.Location
		at        time.Time
		wantStart time.Time
	}{
		{
			name:      "own location",
			at:        time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "midnight belongs to its day",
			at:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "converted to configured location",
			loc:       sarajevo,
			at:        time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
			wantStart: time.Date(2026, 3, 15, 0, 0, 0, 0, sarajevo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := NewRecorder(tt.loc).DayWindow(tt.at)
			assert.True(t, tt.wantStart.Equal(start), "start %s", start)
			assert.Equal(t, 24*time.Hour, end.Sub(start))
		})
	}
}

func TestRecordSameDay(t *testing.T) {
	ctx := context.Background()
	store := catalogtest.New()
	v := newVariant(t, store)
	rec := NewRecorder(nil)

	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	w, err := rec.Record(ctx, store, v, morning)
	require.NoError(t, err)
	assert.Equal(t, WriteInserted, w)

	w, err = rec.Record(ctx, store, v, evening)
	require.NoError(t, err)
	assert.Equal(t, WriteUnchanged, w)

	rows, err := store.ListPriceHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, morning.Equal(rows[0].RecordedAt), "unchanged write keeps the first timestamp")

	v.Price = price("879.00")
	v.PriceString = "879,00 KM"
	w, err = rec.Record(ctx, store, v, evening)
	require.NoError(t, err)
	assert.Equal(t, WriteUpdated, w)

	rows, err = store.ListPriceHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Price.Decimal.Equal(decimal.RequireFromString("879")))
	assert.Equal(t, "879,00 KM", rows[0].PriceString)
	assert.True(t, evening.Equal(rows[0].RecordedAt))
}

func TestRecordNewDayInserts(t *testing.T) {
	ctx := context.Background()
	store := catalogtest.New()
	v := newVariant(t, store)
	rec := NewRecorder(nil)

	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	_, err := rec.Record(ctx, store, v, day1)
	require.NoError(t, err)

	v.Price = price("849.00")
	v.PriceString = "849,00 KM"
	w, err := rec.Record(ctx, store, v, day2)
	require.NoError(t, err)
	assert.Equal(t, WriteInserted, w)

	rows, err := store.ListPriceHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Price.Decimal.Equal(decimal.RequireFromString("899")))
	assert.True(t, rows[1].Price.Decimal.Equal(decimal.RequireFromString("849")))
}

func TestRecordNullFieldsCompare(t *testing.T) {
	ctx := context.Background()
	store := catalogtest.New()
	v := newVariant(t, store)
	rec := NewRecorder(nil)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := rec.Record(ctx, store, v, at)
	require.NoError(t, err)

	// 0 is not the same observation as "no old price"
	v.OldPrice = decimal.NewNullDecimal(decimal.Zero)
	w, err := rec.Record(ctx, store, v, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, WriteUpdated, w)

	// scale differences are not price changes
	v.OldPrice = decimal.NewNullDecimal(decimal.RequireFromString("0.00"))
	w, err = rec.Record(ctx, store, v, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, WriteUnchanged, w)
}

func TestRecordErrors(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(nil)

	_, err := rec.Record(ctx, catalogtest.New(), &catalog.ProductVariant{}, time.Now())
	assert.Error(t, err)

	store := catalogtest.New()
	v := newVariant(t, store)
	boom := errors.New("connection reset")
	store.FailOn("FindPriceHistory", boom)
	_, err = rec.Record(ctx, store, v, time.Now())
	assert.ErrorIs(t, err, boom)

	store.FailOn("FindPriceHistory", nil)
	store.FailOn("InsertPriceHistory", boom)
	_, err = rec.Record(ctx, store, v, time.Now())
	assert.ErrorIs(t, err, boom)
	rows, err := store.ListPriceHistory(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
