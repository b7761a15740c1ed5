// Package similarity scores whether a listing and a product, or two products,
// describe the same thing. One scorer serves matching and merging; they differ
// only in weights and threshold.
package similarity

import (
	"regexp"
	"strings"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/normalize"
)

const (
	// DefaultMatchThreshold is the minimum score for attaching a listing to a product
	DefaultMatchThreshold = 0.7
	// DefaultMergeThreshold is the minimum score for merging two products
	DefaultMergeThreshold = 0.8
	// DefaultDuplicateThreshold is the stricter threshold of the cleanup duplicate sweep
	DefaultDuplicateThreshold = 0.85
)

// Mode selects the weighting of a scorer
type Mode int

const (
	ModeMatch Mode = iota // listing vs product
	ModeMerge             // product vs product
)

func (m Mode) String() string {
	if m == ModeMerge {
		return "merge"
	}
	return "match"
}

// Weights of the three signals. A signal missing on either side contributes
// neither score nor weight.
type Weights struct {
	Brand float64
	Model float64
	Title float64
}

// WeightsFor returns the default weights of mode
func WeightsFor(mode Mode) Weights {
	if mode == ModeMerge {
		return Weights{Brand: 0.4, Model: 0.5, Title: 0.3}
	}
	return Weights{Brand: 0.3, Model: 0.5, Title: 0.2}
}

// Scorer computes weighted similarity in [0,1]
type Scorer struct {
	norm    *normalize.Normalizer
	mode    Mode
	weights Weights
}

// NewScorer creates a scorer using the default weights of mode
func NewScorer(norm *normalize.Normalizer, mode Mode) *Scorer {
	return &Scorer{norm: norm, mode: mode, weights: WeightsFor(mode)}
}

// Mode returns the scorer mode
func (s *Scorer) Mode() Mode { return s.mode }

// ScoreCandidate scores an extracted listing against an existing product
func (s *Scorer) ScoreCandidate(ex normalize.Extraction, p catalog.Product) float64 {
	return s.score(ex.Brand, p.Brand, ex.Model, p.Model, ex.CleanedTitle, p.Name)
}

// ScoreProducts scores two catalog products against each other
func (s *Scorer) ScoreProducts(a, b catalog.Product) float64 {
	return s.score(a.Brand, b.Brand, a.Model, b.Model, a.Name, b.Name)
}

func (s *Scorer) score(brandA, brandB, modelA, modelB, titleA, titleB string) float64 {
	var total, weight float64

	if present(brandA) && present(brandB) {
		weight += s.weights.Brand
		if strings.EqualFold(strings.TrimSpace(brandA), strings.TrimSpace(brandB)) {
			total += s.weights.Brand
		}
	}
	if present(modelA) && present(modelB) {
		weight += s.weights.Model
		total += s.weights.Model * ModelSimilarity(modelA, modelB)
	}
	if present(titleA) && present(titleB) {
		weight += s.weights.Title
		total += s.weights.Title * s.norm.CalculateTitleSimilarity(titleA, titleB)
	}

	if weight == 0 {
		return 0
	}
	return total / weight
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

var digitsRe = regexp.MustCompile(`\d+`)

// ModelSimilarity compares two model strings token by token. Tokens are
// equivalent when identical or when their digits agree ("S21" ~ "S-21").
// The Dice coefficient of equivalent tokens is multiplied by
// min(0.7, 1-0.2*unique) when either side has unmatched tokens, so tiers like
// "13" and "13 Pro" stay apart.
func ModelSimilarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1
	}

	tokA := strings.Fields(strings.ToLower(a))
	tokB := strings.Fields(strings.ToLower(b))

	used := make([]bool, len(tokB))
	common := 0
	for _, ta := range tokA {
		for j, tb := range tokB {
			if !used[j] && equivalent(ta, tb) {
				used[j] = true
				common++
				break
			}
		}
	}

	dice := 2 * float64(common) / float64(len(tokA)+len(tokB))
	unique := (len(tokA) - common) + (len(tokB) - common)
	if unique == 0 {
		return dice
	}

	multiplier := 1 - 0.2*float64(unique)
	if multiplier > 0.7 {
		multiplier = 0.7
	}
	if multiplier < 0 {
		multiplier = 0
	}
	return dice * multiplier
}

func equivalent(a, b string) bool {
	if a == b {
		return true
	}
	da := strings.Join(digitsRe.FindAllString(a, -1), "")
	db := strings.Join(digitsRe.FindAllString(b, -1), "")
	return da != "" && da == db
}
