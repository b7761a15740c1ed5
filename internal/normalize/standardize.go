package normalize

import (
	"regexp"
	"strings"
)

var (
	galaxyPrefixRe = regexp.MustCompile(`(?i)^galaxy\s+`)
	letterGapRe    = regexp.MustCompile(`(?i)\b([a-z])\s+(\d+)`)
	letterNumberRe = regexp.MustCompile(`\b([a-z])(\d+)`)
	iphoneRe       = regexp.MustCompile(`(?i)\biphone\s*(\d+)`)
	tierSuffixRe   = regexp.MustCompile(`(?i)(\d)(pro\s*max|pro|max|plus|mini)\b`)
	proMaxRe       = regexp.MustCompile(`(?i)\bpro\s*max\b`)
	hyphenRe       = regexp.MustCompile(`\s*-\s*`)
)

var samsungFamily = map[string]bool{"samsung": true}
var appleFamily = map[string]bool{"apple": true, "iphone": true}

// StandardizeModelName applies brand specific spelling rules so the same
// model reads the same whatever retailer listed it:
// Samsung drops "Galaxy" and closes "S 21" to "S21", Apple gets "iPhone 14 Pro Max".
// Tier words are capitalized for every brand.
func (n *Normalizer) StandardizeModelName(brand, model string) string {
	model = collapse(model)
	if model == "" {
		return ""
	}
	b := strings.ToLower(strings.TrimSpace(brand))

	if samsungFamily[b] || galaxyPrefixRe.MatchString(model) {
		model = galaxyPrefixRe.ReplaceAllString(model, "")
		model = letterGapRe.ReplaceAllString(model, "$1$2")
		model = letterNumberRe.ReplaceAllStringFunc(model, strings.ToUpper)
	}

	if appleFamily[b] || iphoneRe.MatchString(model) {
		model = tierSuffixRe.ReplaceAllString(model, "$1 $2")
		model = proMaxRe.ReplaceAllString(model, "Pro Max")
		model = iphoneRe.ReplaceAllString(model, "iPhone $1")
	}

	model = hyphenRe.ReplaceAllString(model, "-")

	tokens := strings.Fields(model)
	for i, tok := range tokens {
		if n.snap.IsModifier(tok) {
			tokens[i] = capitalize(strings.ToLower(tok))
		}
	}
	model = strings.Join(tokens, " ")
	if strings.HasPrefix(model, "iPhone") {
		return model
	}
	return capitalize(model)
}
