package normalize

import (
	"regexp"
	"strings"
)

var (
	comboRe         = regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+\s*(\d{2,4})\s*(gb|tb)?\b`)
	ramRe           = regexp.MustCompile(`(?i)(\d+)\s*gb\s*ram\b`)
	ramPrefixRe     = regexp.MustCompile(`(?i)\bram\s*(\d+)\s*gb`)
	followedByRAMRe = regexp.MustCompile(`(?i)^\s*ram\b`)
)

// ExtractColor returns the first registry color found in title, lowercase
func (n *Normalizer) ExtractColor(title string) string {
	clean := n.CleanTitle(title)
	if clean == "" {
		return ""
	}
	for _, rule := range n.snap.Colors() {
		if rule.Pattern.MatchString(clean) {
			return rule.Key
		}
	}
	return ""
}

// ExtractStorageInfo returns the storage capacity, e.g. "128GB". A RAM+storage
// combo ("8+128GB") yields its second number; otherwise the first capture
// group of the first matching registry storage pattern is used.
func (n *Normalizer) ExtractStorageInfo(title string) string {
	clean := n.CleanTitle(title)
	if clean == "" {
		return ""
	}

	if m := comboRe.FindStringSubmatch(clean); m != nil {
		unit := strings.ToUpper(m[3])
		if unit == "" {
			unit = "GB"
		}
		return m[2] + unit
	}

	for _, re := range n.snap.StoragePatterns() {
		for _, loc := range re.FindAllStringSubmatchIndex(clean, -1) {
			// "8GB RAM" is memory, not storage
			if followedByRAMRe.MatchString(clean[loc[1]:]) {
				continue
			}
			value := clean[loc[0]:loc[1]]
			if len(loc) >= 4 && loc[2] >= 0 {
				value = clean[loc[2]:loc[3]]
			}
			if value = strings.Join(strings.Fields(value), ""); value != "" {
				return strings.ToUpper(value)
			}
		}
	}
	return ""
}

// ExtractRamInfo returns the memory size, e.g. "8GB"
func (n *Normalizer) ExtractRamInfo(title string) string {
	clean := n.CleanTitle(title)
	if clean == "" {
		return ""
	}
	if m := comboRe.FindStringSubmatch(clean); m != nil {
		return m[1] + "GB"
	}
	if m := ramRe.FindStringSubmatch(clean); m != nil {
		return m[1] + "GB"
	}
	if m := ramPrefixRe.FindStringSubmatch(clean); m != nil {
		return m[1] + "GB"
	}
	return ""
}
