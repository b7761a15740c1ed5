package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate
func Schema() string { return schema }

// Migrate creates every table and index that does not exist yet
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertCategory inserts a category or renames the existing one with the same code
func UpsertCategory(ctx context.Context, p *pgxpool.Pool, code, name string) (int64, error) {
	var id int64
	err := p.QueryRow(ctx, `
		INSERT INTO categories (code, name) VALUES (lower($1), $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, code, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert category %q: %w", code, err)
	}
	return id, nil
}
