package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// setupTestDatabase starts PostgreSQL, applies the schema and returns a pool
func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Open(ctx, PoolConfig{URL: connStr, MaxConns: 10})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// a second run must be a no-op
	require.NoError(t, Migrate(ctx, pool))

	stats := StatsOf(pool)
	require.NotNil(t, stats)
	assert.Equal(t, int32(10), stats.MaxConns)
	return pool
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestPostgresStores(t *testing.T) {
	pool := setupTestDatabase(t)
	ctx := context.Background()
	store := NewCatalogStore(pool)

	t.Run("raw items", func(t *testing.T) {
		items := []catalog.RawItem{
			{ConfigCode: "shop.ba/smartphones", WebsiteCode: "shop", Title: "Samsung Galaxy S21 128GB", Link: "https://shop.ba/smartphones/s21", Price: price("899.00")},
			{ConfigCode: "shop.ba/laptops", WebsiteCode: "shop", Title: "Lenovo IdeaPad 3", Link: "https://shop.ba/laptops/ideapad"},
		}
		n, err := store.InsertRawItems(ctx, items)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NotZero(t, items[0].ID)
		assert.False(t, items[0].CreatedAt.IsZero())

		got, err := store.ListUnprocessedRawItems(ctx, catalog.RawItemFilter{Category: "smartphones", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, items[0].Title, got[0].Title)
		assert.True(t, got[0].Price.Valid)
		assert.True(t, got[0].Price.Decimal.Equal(decimal.RequireFromString("899")))
		assert.False(t, got[0].OldPrice.Valid)

		require.NoError(t, store.MarkRawItemProcessed(ctx, items[0].ID, nil))
		got, err = store.ListUnprocessedRawItems(ctx, catalog.RawItemFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, items[1].ID, got[0].ID)

		_, err = store.GetRawItem(ctx, 999999)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		assert.ErrorIs(t, store.MarkRawItemProcessed(ctx, 999999, nil), catalog.ErrNotFound)
	})

	t.Run("product versioning", func(t *testing.T) {
		p := &catalog.Product{Name: "Samsung Galaxy S21", Brand: "Samsung", Model: "Galaxy S21", Category: "smartphones"}
		require.NoError(t, store.CreateProduct(ctx, p))
		assert.Equal(t, 1, p.Version)

		stale := *p
		p.Description = "first"
		require.NoError(t, store.UpdateProduct(ctx, p))
		assert.Equal(t, 2, p.Version)

		stale.Description = "second"
		assert.ErrorIs(t, store.UpdateProduct(ctx, &stale), catalog.ErrVersionConflict)

		missing := catalog.Product{ID: 999999, Version: 1}
		assert.ErrorIs(t, store.UpdateProduct(ctx, &missing), catalog.ErrNotFound)

		byBrand, err := store.FindProductsByBrand(ctx, "SAMSUNG")
		require.NoError(t, err)
		require.NotEmpty(t, byBrand)
		assert.Equal(t, "first", byBrand[0].Description)

		other := &catalog.Product{Name: "Samsung Galaxy S22", Brand: "samsung", Model: "S22"}
		require.NoError(t, store.CreateProduct(ctx, other))
		first, err := store.ListProductsByBrand(ctx, "Samsung", 0, 1)
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.Equal(t, p.ID, first[0].ID)
		rest, err := store.ListProductsByBrand(ctx, "SAMSUNG", first[0].ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, other.ID, rest[0].ID)

		found, err := store.SearchProducts(ctx, "galaxy s21", 5)
		require.NoError(t, err)
		assert.NotEmpty(t, found)
	})

	t.Run("variants and history cascade", func(t *testing.T) {
		p := &catalog.Product{Name: "Apple iPhone 13", Brand: "Apple", Model: "iPhone 13"}
		require.NoError(t, store.CreateProduct(ctx, p))

		v := &catalog.ProductVariant{ProductID: p.ID, WebsiteCode: "shop", SourceURL: "https://shop.ba/iphone-13", Size: "128GB", Price: price("999.00"), InStock: true}
		require.NoError(t, store.CreateVariant(ctx, v))

		v.Price = price("949.00")
		v.Size = "ignored"
		require.NoError(t, store.UpdateVariantPrices(ctx, v))
		assert.Equal(t, "128GB", v.Size, "only price fields change")
		assert.True(t, v.Price.Decimal.Equal(decimal.RequireFromString("949")))

		day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		h := &catalog.PriceHistory{VariantID: v.ID, WebsiteCode: "shop", Price: v.Price, RecordedAt: day}
		require.NoError(t, store.InsertPriceHistory(ctx, h))

		found, err := store.FindPriceHistory(ctx, v.ID, day.Truncate(24*time.Hour), day.Truncate(24*time.Hour).Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, h.ID, found.ID)

		_, err = store.FindPriceHistory(ctx, v.ID, day.Add(24*time.Hour), day.Add(48*time.Hour))
		assert.ErrorIs(t, err, catalog.ErrNotFound)

		bad := &catalog.ProductVariant{ProductID: 999999}
		assert.ErrorIs(t, store.CreateVariant(ctx, bad), catalog.ErrNotFound)

		require.NoError(t, store.DeleteProduct(ctx, p.ID))
		history, err := store.ListPriceHistory(ctx, v.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.ErrorIs(t, store.DeleteProduct(ctx, p.ID), catalog.ErrNotFound)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		var created int64
		err := store.InTx(ctx, func(tx catalog.Store) error {
			p := &catalog.Product{Name: "Rolled Back", Brand: "Nobody"}
			if err := tx.CreateProduct(ctx, p); err != nil {
				return err
			}
			created = p.ID
			// nested calls join the outer transaction
			return tx.InTx(ctx, func(inner catalog.Store) error {
				return assert.AnError
			})
		})
		require.ErrorIs(t, err, assert.AnError)
		_, err = store.GetProduct(ctx, created)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("advisory lock serializes writers", func(t *testing.T) {
		var (
			mu    sync.Mutex
			order []int
			wg    sync.WaitGroup
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.InTx(ctx, func(tx catalog.Store) error {
					if err := tx.LockKey(ctx, "catalog:brand:test"); err != nil {
						return err
					}
					mu.Lock()
					order = append(order, i)
					n := len(order)
					mu.Unlock()
					time.Sleep(20 * time.Millisecond)
					mu.Lock()
					defer mu.Unlock()
					assert.Equal(t, n, len(order), "no other holder ran while locked")
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		assert.Len(t, order, 4)
	})

	t.Run("unmappable attempts", func(t *testing.T) {
		items := []catalog.RawItem{{ConfigCode: "shop.ba/smartphones", Title: "Phone XYZ"}}
		_, err := store.InsertRawItems(ctx, items)
		require.NoError(t, err)

		first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		u := catalog.UnmappableItem{
			RawItemID:     items[0].ID,
			Title:         "Phone XYZ",
			ReasonCode:    catalog.ReasonMissingBrand,
			ExtractedData: catalog.ExtractedData{CleanedTitle: "phone xyz"},
			LastAttempt:   first,
		}
		require.NoError(t, store.RecordUnmappable(ctx, u))
		u.LastAttempt = first.Add(time.Hour)
		require.NoError(t, store.RecordUnmappable(ctx, u))

		got, err := store.ListUnmappableByReason(ctx, catalog.ReasonMissingBrand, 0, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Attempts)
		assert.True(t, got[0].FirstSeen.Equal(first))
		assert.Equal(t, "phone xyz", got[0].ExtractedData.CleanedTitle)

		due, err := store.ListUnmappableForRetry(ctx, first.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)
		due, err = store.ListUnmappableForRetry(ctx, first, 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		require.NoError(t, store.DeleteUnmappable(ctx, items[0].ID))
	})

	t.Run("categories", func(t *testing.T) {
		_, err := UpsertCategory(ctx, pool, "Smartphones", "Smartphones")
		require.NoError(t, err)
		c, err := store.GetCategoryByCode(ctx, "smartphones")
		require.NoError(t, err)
		assert.Equal(t, "smartphones", c.Code)
		_, err = store.GetCategoryByCode(ctx, "toasters")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("registry", func(t *testing.T) {
		reg := NewRegistryStore(pool)
		n, err := reg.Upsert(ctx, []registry.Entry{
			{Type: registry.TypeBrand, Key: "samsung", Value: "Samsung", Enabled: true},
			{Type: registry.TypeColor, Key: "black", Enabled: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		added, err := reg.AddBrandCandidates(ctx, []string{"samsung", "nokia"})
		require.NoError(t, err)
		assert.Equal(t, 1, added, "existing keys are skipped")

		enabled, err := reg.LoadEnabled(ctx)
		require.NoError(t, err)
		assert.Len(t, enabled, 2)

		all, err := reg.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestSchemaDeclaresTables(t *testing.T) {
	tables := []string{"categories", "products", "raw_items", "product_variants", "price_history", "unmappable_items", "registry_entries"}
	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS "+table+" (")
		})
	}
}
