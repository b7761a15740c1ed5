package normalize

import (
	"regexp"
	"strings"

	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/textfold"
)

// ModelRule records which extraction rule produced a model
type ModelRule int

const (
	RuleNone        ModelRule = iota // nothing extracted
	RuleModelNumber                  // alphanumeric model number, e.g. "s21", "x-t30"
	RuleNumeric                      // short number with optional tier, e.g. "14 pro"
	RuleTokens                       // first plain tokens
	RuleFirstToken                   // first raw token
)

func (r ModelRule) String() string {
	switch r {
	case RuleModelNumber:
		return "model-number"
	case RuleNumeric:
		return "numeric"
	case RuleTokens:
		return "tokens"
	case RuleFirstToken:
		return "first-token"
	default:
		return "none"
	}
}

// LowConfidence reports whether the model came from a fallback rule
func (r ModelRule) LowConfidence() bool {
	return r == RuleNone || r == RuleTokens || r == RuleFirstToken
}

var (
	modelShapeRe   = regexp.MustCompile(`^(?:[a-z]+\d+[a-z0-9+\-]*|[a-z]+-[a-z0-9]*\d[a-z0-9+\-]*|\d+[a-z]+\d*)$`)
	shortNumberRe  = regexp.MustCompile(`^\d{1,3}$`)
	numberRe       = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
	storageTokenRe = regexp.MustCompile(`^\d+(?:[.,]\d+)?(?:gb|tb|mb)$`)
	unitTokenRe    = regexp.MustCompile(`^(?:gb|tb|mb)$`)
	comboTokenRe   = regexp.MustCompile(`^\d+\+\d+(?:gb|tb)?$`)
	hasDigitRe     = regexp.MustCompile(`\d`)
)

const maxFallbackTokens = 3

// ExtractModel returns the model mentioned in title once brand is removed
func (n *Normalizer) ExtractModel(title, brand string) string {
	model, _ := n.ExtractModelDetailed(title, brand)
	return model
}

// ExtractModelDetailed is ExtractModel that also reports the rule used.
// Storage, RAM and color tokens are never part of a model.
func (n *Normalizer) ExtractModelDetailed(title, brand string) (string, ModelRule) {
	clean := n.CleanTitle(title)
	if brand != "" {
		clean = n.stripBrand(clean, brand)
	}

	tokens := strings.Fields(clean)
	if len(tokens) == 0 {
		return "", RuleNone
	}
	excluded := n.exclusions(tokens)

	for i, tok := range tokens {
		if !excluded[i] && modelShapeRe.MatchString(tok) {
			return capitalize(n.withModifiers(tokens, excluded, i)), RuleModelNumber
		}
	}

	for i, tok := range tokens {
		if !excluded[i] && shortNumberRe.MatchString(tok) {
			model := n.withModifiers(tokens, excluded, i)
			if iphoneLine(tokens, excluded, brand) {
				// "iPhone 14 Pro" and "iPhone14 Pro" name the same model
				return "iPhone " + model, RuleNumeric
			}
			return capitalize(model), RuleNumeric
		}
	}

	picked := make([]string, 0, maxFallbackTokens)
	for i, tok := range tokens {
		if excluded[i] {
			continue
		}
		picked = append(picked, tok)
		if len(picked) == maxFallbackTokens {
			break
		}
	}
	if len(picked) > 0 {
		return capitalize(strings.Join(picked, " ")), RuleTokens
	}

	return capitalize(tokens[0]), RuleFirstToken
}

// iphoneLine reports whether a bare number in tokens is an iPhone generation
func iphoneLine(tokens []string, excluded []bool, brand string) bool {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b != "" && !appleFamily[b] {
		return false
	}
	for i, tok := range tokens {
		if !excluded[i] && tok == "iphone" {
			return true
		}
	}
	return false
}

func (n *Normalizer) stripBrand(clean, brand string) string {
	rule, ok := n.snap.BrandRule(brand)
	if !ok {
		rule = registry.Rule{Pattern: registry.WordPattern(textfold.Key(brand))}
	}
	return collapse(rule.Pattern.ReplaceAllString(clean, " "))
}

// withModifiers joins tokens[i] with the tier words directly following it
func (n *Normalizer) withModifiers(tokens []string, excluded []bool, i int) string {
	parts := []string{tokens[i]}
	for j := i + 1; j < len(tokens) && !excluded[j] && n.snap.IsModifier(tokens[j]); j++ {
		parts = append(parts, tokens[j])
	}
	return strings.Join(parts, " ")
}

// exclusions flags storage, RAM, combo and color tokens
func (n *Normalizer) exclusions(tokens []string) []bool {
	excluded := make([]bool, len(tokens))
	prevIsNumber := func(i int) bool { return i > 0 && numberRe.MatchString(tokens[i-1]) }

	for i, tok := range tokens {
		switch {
		case comboTokenRe.MatchString(tok), storageTokenRe.MatchString(tok):
			excluded[i] = true
		case unitTokenRe.MatchString(tok), tok == "+":
			excluded[i] = true
			if prevIsNumber(i) {
				excluded[i-1] = true
			}
		case tok == "ram":
			excluded[i] = true
			if prevIsNumber(i) {
				excluded[i-1] = true
			}
		case n.isStoragePatternToken(tok):
			excluded[i] = true
		}
	}
	// "8 + 128gb": the number after a plus belongs to the combo
	for i := 1; i < len(tokens); i++ {
		if tokens[i-1] == "+" && numberRe.MatchString(tokens[i]) {
			excluded[i] = true
		}
	}

	n.excludeColors(tokens, excluded)
	return excluded
}

func (n *Normalizer) isStoragePatternToken(tok string) bool {
	for _, re := range n.snap.StoragePatterns() {
		if loc := re.FindStringIndex(tok); loc != nil && loc[0] == 0 && loc[1] == len(tok) {
			return true
		}
	}
	return false
}

// excludeColors flags tokens covered by a registry color, plus the descriptive
// word in front of it ("phantom black", "in black") unless that word carries a
// digit or is a tier word.
func (n *Normalizer) excludeColors(tokens []string, excluded []bool) {
	colors := n.snap.Colors()
	if len(colors) == 0 {
		return
	}

	joined := strings.Join(tokens, " ")
	starts := make([]int, len(tokens))
	offset := 0
	for i, tok := range tokens {
		starts[i] = offset
		offset += len(tok) + 1
	}
	tokenAt := func(pos int) int {
		idx := 0
		for i, s := range starts {
			if s <= pos {
				idx = i
			}
		}
		return idx
	}

	for _, rule := range colors {
		for _, loc := range rule.Pattern.FindAllStringIndex(joined, -1) {
			first := tokenAt(loc[0])
			last := tokenAt(loc[1] - 1)
			for k := first; k <= last; k++ {
				excluded[k] = true
			}
			if first > 0 {
				prev := tokens[first-1]
				if !hasDigitRe.MatchString(prev) && !n.snap.IsModifier(prev) {
					excluded[first-1] = true
				}
			}
		}
	}
}
