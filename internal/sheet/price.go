package sheet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySuffixRe = regexp.MustCompile(`\s*(KM|BAM|KN|KUNA|HRK|EUR|USD|RSD|DIN)\.?\s*$`)

// ParsePrice parses a displayed price into a decimal.
// Handles "12.99", "12,99", "1.299,00", "1 299,00 KM" and "€1,299.00".
func ParsePrice(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty price value")
	}

	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '€', '$', '£', '¥', ' ', '\u00A0':
			return -1
		}
		return r
	}, cleaned)
	cleaned = currencySuffixRe.ReplaceAllString(strings.ToUpper(cleaned), "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("no numeric value in %q", value)
	}

	// the separator appearing last is the decimal separator
	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	if lastComma > lastDot {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else if lastDot > lastComma {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price format %q: %w", value, err)
	}
	return d.Round(2), nil
}

// ParseOptionalPrice parses value into a NullDecimal, invalid when value is blank.
func ParseOptionalPrice(value string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParsePrice(value)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
