package registry

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/internal/textfold"
)

// defaultModifiers are model tier words that are never treated as standalone brands
// when they follow other text.
var defaultModifiers = []string{"lite", "pro", "plus", "ultra", "max", "mini"}

// Rule is a registry key with its precompiled whole-word matcher. Key is the
// folded form used for lookups; Display keeps the registry casing ("LG", "OnePlus").
type Rule struct {
	Key     string
	Display string
	Pattern *regexp.Regexp
}

// Snapshot is an immutable view of the enabled registry. It is built once per
// refresh and swapped in atomically, so readers never see a partial update.
type Snapshot struct {
	version  int64
	loadedAt time.Time

	brands          []Rule
	brandSet        map[string]int
	notBrands       map[string]struct{}
	commonWords     []string
	commonWordsRe   *regexp.Regexp
	commonWordSet   map[string]struct{}
	colors          []Rule
	colorSet        map[string]struct{}
	storagePatterns []*regexp.Regexp
	modifiers       map[string]struct{}

	dropped []string
}

// Empty returns a snapshot with no registry entries. Modifiers are still present.
func Empty() *Snapshot {
	return NewSnapshot(nil, zerolog.Nop())
}

// NewSnapshot compiles entries into a snapshot. Disabled entries are ignored.
// Storage patterns that fail to compile are logged and dropped.
func NewSnapshot(entries []Entry, logger zerolog.Logger) *Snapshot {
	s := &Snapshot{
		loadedAt:      time.Now(),
		brandSet:      make(map[string]int),
		notBrands:     make(map[string]struct{}),
		commonWordSet: make(map[string]struct{}),
		colorSet:      make(map[string]struct{}),
		modifiers:     make(map[string]struct{}),
	}
	for _, m := range defaultModifiers {
		s.modifiers[m] = struct{}{}
	}

	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		key := textfold.Key(e.Key)
		if key == "" {
			continue
		}

		switch e.Type {
		case TypeBrand:
			if _, dup := s.brandSet[key]; dup {
				continue
			}
			s.brandSet[key] = len(s.brands)
			display := e.Key
			if strings.TrimSpace(e.Value) != "" {
				display = e.Value
			}
			s.brands = append(s.brands, Rule{Key: key, Display: DisplayName(display), Pattern: WordPattern(key)})
		case TypeNotBrand:
			s.notBrands[key] = struct{}{}
		case TypeCommonWord:
			if _, dup := s.commonWordSet[key]; dup {
				continue
			}
			s.commonWordSet[key] = struct{}{}
			s.commonWords = append(s.commonWords, key)
		case TypeColor:
			if _, dup := s.colorSet[key]; dup {
				continue
			}
			s.colorSet[key] = struct{}{}
			s.colors = append(s.colors, Rule{Key: key, Pattern: WordPattern(key)})
		case TypeStoragePattern:
			re, err := regexp.Compile("(?i)" + strings.TrimSpace(e.Key))
			if err != nil {
				logger.Warn().Err(err).Str("pattern", e.Key).Msg("Dropping invalid storage pattern")
				s.dropped = append(s.dropped, e.Key)
				continue
			}
			s.storagePatterns = append(s.storagePatterns, re)
		}
	}

	// common words made only of tier words ("pro max") join the modifier vocabulary
	for _, w := range s.commonWords {
		if onlyModifiers(strings.Fields(w), s.modifiers) {
			for _, tok := range strings.Fields(w) {
				s.modifiers[tok] = struct{}{}
			}
		}
	}

	if len(s.commonWords) > 0 {
		// longest first so multi-word phrases win over their parts
		words := append([]string(nil), s.commonWords...)
		sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
		alts := make([]string, len(words))
		for i, w := range words {
			alts[i] = regexp.QuoteMeta(w)
		}
		s.commonWordsRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}

	return s
}

func onlyModifiers(tokens []string, modifiers map[string]struct{}) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if _, ok := modifiers[t]; !ok {
			return false
		}
	}
	return true
}

// WordPattern builds a case-insensitive whole-word matcher for key. Word
// boundaries are only asserted on edges that are word characters.
func WordPattern(key string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)")
	runes := []rune(key)
	if len(runes) > 0 && isWordRune(runes[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(key))
	if len(runes) > 0 && isWordRune(runes[len(runes)-1]) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

// DisplayName is how a registry key reads in output. Keys written with any
// upper-case letter keep their casing, all lower-case keys get a capital first letter.
func DisplayName(key string) string {
	key = strings.Join(strings.Fields(key), " ")
	for _, r := range key {
		if unicode.IsUpper(r) {
			return key
		}
	}
	for i, r := range key {
		return string(unicode.ToUpper(r)) + key[i+len(string(r)):]
	}
	return key
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Version increases with every refresh of the owning cache.
func (s *Snapshot) Version() int64 { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Brands returns brand rules in registry order.
func (s *Snapshot) Brands() []Rule { return s.brands }

// IsBrand reports whether key is a known brand.
func (s *Snapshot) IsBrand(key string) bool {
	_, ok := s.brandSet[textfold.Key(key)]
	return ok
}

// BrandRule returns the compiled rule of brand key.
func (s *Snapshot) BrandRule(key string) (Rule, bool) {
	i, ok := s.brandSet[textfold.Key(key)]
	if !ok {
		return Rule{}, false
	}
	return s.brands[i], true
}

// IsNotBrand reports whether key was explicitly rejected as a brand.
func (s *Snapshot) IsNotBrand(key string) bool {
	_, ok := s.notBrands[textfold.Key(key)]
	return ok
}

// IsCommonWord reports whether key is a common word.
func (s *Snapshot) IsCommonWord(key string) bool {
	_, ok := s.commonWordSet[textfold.Key(key)]
	return ok
}

// CommonWordsPattern matches any common word as a whole word, nil when there are none.
func (s *Snapshot) CommonWordsPattern() *regexp.Regexp { return s.commonWordsRe }

// Colors returns color rules in registry order.
func (s *Snapshot) Colors() []Rule { return s.colors }

// IsColor reports whether key is a known color.
func (s *Snapshot) IsColor(key string) bool {
	_, ok := s.colorSet[textfold.Key(key)]
	return ok
}

// StoragePatterns returns the compiled storage patterns in registry order.
func (s *Snapshot) StoragePatterns() []*regexp.Regexp { return s.storagePatterns }

// IsModifier reports whether tok is a model tier word such as "pro" or "max".
func (s *Snapshot) IsModifier(tok string) bool {
	_, ok := s.modifiers[strings.ToLower(tok)]
	return ok
}

// Dropped returns storage patterns that failed to compile.
func (s *Snapshot) Dropped() []string { return s.dropped }

// Counts returns the number of active entries per type.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		string(TypeBrand):          len(s.brands),
		string(TypeNotBrand):       len(s.notBrands),
		string(TypeCommonWord):     len(s.commonWords),
		string(TypeColor):          len(s.colors),
		string(TypeStoragePattern): len(s.storagePatterns),
	}
}
