// Package registry holds the admin-curated vocabulary (brands, common words,
// colors, storage patterns) that drives title extraction, and the cache that
// serves it to the engines as immutable snapshots.
package registry

import (
	"context"
	"fmt"
	"strings"
)

// EntryType is the kind of a registry entry
type EntryType string

const (
	TypeBrand          EntryType = "Brand"
	TypeNotBrand       EntryType = "NotBrand"
	TypeCommonWord     EntryType = "CommonWord"
	TypeColor          EntryType = "Color"
	TypeStoragePattern EntryType = "StoragePattern"
)

// EntryTypes lists every entry type
var EntryTypes = []EntryType{TypeBrand, TypeNotBrand, TypeCommonWord, TypeColor, TypeStoragePattern}

// ParseEntryType resolves a type name case-insensitively. "common_word" and
// "storage-pattern" spellings are accepted.
func ParseEntryType(s string) (EntryType, error) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range EntryTypes {
		if strings.ToLower(string(t)) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown registry entry type %q", s)
}

// Entry is one row of the registry, unique on (Type, Key)
type Entry struct {
	ID      int64     `json:"id"`
	Type    EntryType `json:"type"`
	Key     string    `json:"key"`
	Value   string    `json:"value,omitempty"` // display form of a brand, e.g. "OnePlus" for key "oneplus"
	Enabled bool      `json:"enabled"`
}

// Store is the persistent registry
type Store interface {
	// LoadEnabled returns every enabled entry ordered by id
	LoadEnabled(ctx context.Context) ([]Entry, error)
	// Upsert inserts or updates entries on (type, key) and returns the number written
	Upsert(ctx context.Context, entries []Entry) (int, error)
	// AddBrandCandidates inserts disabled Brand entries, skipping keys already present
	AddBrandCandidates(ctx context.Context, keys []string) (int, error)
}
