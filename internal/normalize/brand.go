package normalize

import "sort"

type brandHit struct {
	key      string
	display  string
	pos      int
	modifier bool
}

// ExtractBrand returns the registry brand mentioned in title in its display
// form, or "" when none is. Brands are never guessed outside the registry.
//
// When several brands match, tier words ("pro", "max"...) that follow other
// text are dropped in favour of real brands, and the earliest mention wins.
func (n *Normalizer) ExtractBrand(title string) string {
	clean := n.CleanTitle(title)
	if clean == "" {
		return ""
	}

	var hits []brandHit
	for _, rule := range n.snap.Brands() {
		loc := rule.Pattern.FindStringIndex(clean)
		if loc == nil {
			continue
		}
		hits = append(hits, brandHit{
			key:      rule.Key,
			display:  rule.Display,
			pos:      loc[0],
			modifier: n.snap.IsModifier(rule.Key) && loc[0] > 0,
		})
	}

	switch len(hits) {
	case 0:
		return ""
	case 1:
		return hits[0].display
	}

	candidates := hits[:0:0]
	for _, h := range hits {
		if !h.modifier {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		candidates = hits
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].pos != candidates[j].pos {
			return candidates[i].pos < candidates[j].pos
		}
		// "apple watch" over "apple" at the same position
		return len(candidates[i].key) > len(candidates[j].key)
	})
	return candidates[0].display
}
