// Package normalize extracts brand, model and attributes from noisy retailer
// titles. Every function is deterministic for a given registry snapshot, so
// matching, cleanup and consistency all extract the same values from a title.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/textfold"
)

var (
	bracketRe    = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]|\{[^{}]*\}`)
	hashtagRe    = regexp.MustCompile(`#\w+`)
	disallowedRe = regexp.MustCompile(`[^\w\s\-+]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Normalizer runs title extraction against one registry snapshot
type Normalizer struct {
	snap *registry.Snapshot
}

// New creates a normalizer bound to snap. A nil snap behaves as an empty registry.
func New(snap *registry.Snapshot) *Normalizer {
	if snap == nil {
		snap = registry.Empty()
	}
	return &Normalizer{snap: snap}
}

// Snapshot returns the registry snapshot the normalizer reads
func (n *Normalizer) Snapshot() *registry.Snapshot {
	return n.snap
}

// CleanTitle lowercases title, folds diacritics and strips bracketed text,
// hashtags, punctuation and registry common words. The result is stable:
// cleaning it again returns it unchanged.
func (n *Normalizer) CleanTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}

	s := strings.ToLower(textfold.RemoveDiacritics(title))
	for {
		stripped := bracketRe.ReplaceAllString(s, " ")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = hashtagRe.ReplaceAllString(s, " ")
	s = disallowedRe.ReplaceAllString(s, " ")
	s = collapse(s)

	if re := n.snap.CommonWordsPattern(); re != nil {
		for {
			stripped := collapse(re.ReplaceAllString(s, " "))
			if stripped == s {
				break
			}
			s = stripped
		}
	}
	return s
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Tokens returns the whitespace separated tokens of the cleaned title
func (n *Normalizer) Tokens(title string) []string {
	return strings.Fields(n.CleanTitle(title))
}

// CalculateTitleSimilarity is the Jaccard similarity of the cleaned token sets.
// Titles that clean to nothing only compare equal to themselves.
func (n *Normalizer) CalculateTitleSimilarity(a, b string) float64 {
	setA := tokenSet(n.Tokens(a))
	setB := tokenSet(n.Tokens(b))

	union := len(setA)
	intersection := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		if strings.TrimSpace(a) != "" && strings.TrimSpace(a) == strings.TrimSpace(b) {
			return 1
		}
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// capitalize upper-cases the first letter of s
func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
