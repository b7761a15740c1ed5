package sheet

import "strings"

var delimiters = []rune{',', ';', '\t'}

// DetectDelimiter picks the delimiter whose count is highest and most
// consistent across the first five non-empty lines. Defaults to comma.
func DetectDelimiter(content string) rune {
	if len(content) > 2000 {
		content = content[:2000]
	}

	sample := make([]string, 0, 5)
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample = append(sample, trimmed)
			if len(sample) >= 5 {
				break
			}
		}
	}
	if len(sample) == 0 {
		return ','
	}

	best := ','
	maxConsistency := 0.0
	for _, delim := range delimiters {
		counts := make([]int, len(sample))
		sum := 0
		for i, line := range sample {
			counts[i] = strings.Count(line, string(delim))
			sum += counts[i]
		}
		avg := float64(sum) / float64(len(counts))
		if avg == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			diff := float64(c) - avg
			variance += diff * diff
		}
		variance /= float64(len(counts))

		if consistency := avg / (1.0 + variance); consistency > maxConsistency {
			maxConsistency = consistency
			best = delim
		}
	}
	return best
}
