// Package textfold folds accented Latin text to plain ASCII letters so that
// registry keys and scraped titles compare equal regardless of diacritics.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// đ has no decomposition, so it is mapped explicitly
var strokeReplacer = strings.NewReplacer(
	"đ", "dj", "Đ", "Dj",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"ß", "ss",
)

// RemoveDiacritics converts č, ć, š, ž, é, ü... to their base letters and đ to dj
func RemoveDiacritics(s string) string {
	s = strokeReplacer.Replace(s)

	// NFD + strip combining marks
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Key folds and lowercases s for registry lookups
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(RemoveDiacritics(s)))
}
