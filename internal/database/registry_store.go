package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easycrawl/catalog-service/internal/registry"
)

// RegistryStore is the PostgreSQL registry.Store
type RegistryStore struct {
	pool *pgxpool.Pool
}

var _ registry.Store = (*RegistryStore)(nil)

// NewRegistryStore creates a store on p
func NewRegistryStore(p *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{pool: p}
}

func (s *RegistryStore) LoadEnabled(ctx context.Context) ([]registry.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, key, value, enabled
		FROM registry_entries
		WHERE enabled
		ORDER BY id`)
	entries, err := collect(rows, err, func(row pgx.Row) (registry.Entry, error) {
		var (
			e   registry.Entry
			typ string
		)
		err := row.Scan(&e.ID, &typ, &e.Key, &e.Value, &e.Enabled)
		e.Type = registry.EntryType(typ)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("load registry entries: %w", err)
	}
	return entries, nil
}

// ListAll returns every entry, disabled ones included, ordered by type and key
func (s *RegistryStore) ListAll(ctx context.Context) ([]registry.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, key, value, enabled
		FROM registry_entries
		ORDER BY type, key`)
	entries, err := collect(rows, err, func(row pgx.Row) (registry.Entry, error) {
		var (
			e   registry.Entry
			typ string
		)
		err := row.Scan(&e.ID, &typ, &e.Key, &e.Value, &e.Enabled)
		e.Type = registry.EntryType(typ)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("list registry entries: %w", err)
	}
	return entries, nil
}

func (s *RegistryStore) Upsert(ctx context.Context, entries []registry.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO registry_entries (type, key, value, enabled)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (type, key) DO UPDATE
			SET value = EXCLUDED.value, enabled = EXCLUDED.enabled`,
			string(e.Type), e.Key, e.Value, e.Enabled)
	}
	return execBatch(ctx, s.pool, batch, "upsert registry entry")
}

func (s *RegistryStore) AddBrandCandidates(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`
			INSERT INTO registry_entries (type, key, value, enabled)
			VALUES ($1, $2, '', false)
			ON CONFLICT (type, key) DO NOTHING`,
			string(registry.TypeBrand), k)
	}
	return execBatch(ctx, s.pool, batch, "add brand candidate")
}

// execBatch runs every queued statement in one transaction and sums the affected rows
func execBatch(ctx context.Context, p *pgxpool.Pool, batch *pgx.Batch, what string) (int, error) {
	written := 0
	err := pgx.BeginTxFunc(ctx, p, pgx.TxOptions{}, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return fmt.Errorf("%s %d of %d: %w", what, i+1, batch.Len(), err)
			}
			written += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
