package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
	"github.com/easycrawl/catalog-service/internal/normalize"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// DefaultMinOccurrences is how often a token must lead a brandless title to be proposed
const DefaultMinOccurrences = 3

// BrandSink stores mined brand candidates for review
type BrandSink interface {
	AddBrandCandidates(ctx context.Context, keys []string) (int, error)
}

// MiningResult reports one brand mining pass
type MiningResult struct {
	Scanned    int
	Candidates map[string]int // token -> occurrences, only those proposed
	Added      int
}

// MineBrands looks at items parked for a missing brand and proposes the
// leading title tokens that recur at least minOccurrences times. Candidates
// are stored disabled; an operator enables the real brands.
func (e *Engine) MineBrands(ctx context.Context, sink BrandSink, minOccurrences int) (*MiningResult, error) {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}
	start := time.Now()
	snap := e.registry.Snapshot()
	norm := normalize.New(snap)

	counts := make(map[string]int)
	result := &MiningResult{Candidates: make(map[string]int)}

	var afterID int64
	for {
		items, err := e.store.ListUnmappableByReason(ctx, catalog.ReasonMissingBrand, afterID, e.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list brandless items: %w", err)
		}
		for _, item := range items {
			result.Scanned++
			if tok := brandToken(snap, norm.Tokens(item.Title)); tok != "" {
				counts[tok]++
			}
		}
		if len(items) < e.config.BatchSize {
			break
		}
		afterID = items[len(items)-1].RawItemID
	}

	var keys []string
	for tok, n := range counts {
		if n >= minOccurrences {
			keys = append(keys, tok)
			result.Candidates[tok] = n
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if len(keys) > 0 && sink != nil {
		added, err := sink.AddBrandCandidates(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("store brand candidates: %w", err)
		}
		result.Added = added
	}

	metrics.RecordJobDuration("mine-brands", time.Since(start))
	e.logger.Info().
		Int("scanned", result.Scanned).
		Int("candidates", len(keys)).
		Int("added", result.Added).
		Msg("Brand mining completed")
	return result, nil
}

// brandToken returns the leading token of a cleaned title if it could be a
// brand nobody has registered yet.
func brandToken(snap *registry.Snapshot, tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	tok := tokens[0]
	switch {
	case utf8.RuneCountInString(tok) < 2,
		strings.IndexFunc(tok, func(r rune) bool { return !unicode.IsDigit(r) }) < 0,
		snap.IsBrand(tok),
		snap.IsNotBrand(tok),
		snap.IsCommonWord(tok),
		snap.IsColor(tok),
		snap.IsModifier(tok):
		return ""
	}
	return tok
}
