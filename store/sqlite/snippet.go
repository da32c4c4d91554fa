package sqlite

import "strings"

// GenerateSnippet scans content with a sliding 100-char window and returns
// the window containing the most distinct matched query terms, padded by
// 20 characters of leading context and bounded to maxLen (spec §4.1,
// grounded on the original engine's _generate_snippet sliding-window scan).
// Ties resolve to the first (left-most) window. When content is shorter
// than the window or no term matches, the function falls back to a plain
// leading truncation so callers always get a non-empty snippet.
func GenerateSnippet(content string, terms []string, maxLen int) string {
	const windowLen = 100
	if maxLen <= 0 {
		maxLen = 160
	}
	lower := strings.ToLower(content)
	if len(lower) == 0 {
		return ""
	}

	lowerTerms := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowerTerms = append(lowerTerms, t)
		}
	}

	bestStart, bestCount := 0, -1
	if len(lowerTerms) > 0 && len(lower) > windowLen {
		for start := 0; start <= len(lower)-windowLen; start++ {
			window := lower[start : start+windowLen]
			count := 0
			for _, t := range lowerTerms {
				if strings.Contains(window, t) {
					count++
				}
			}
			if count > bestCount {
				bestCount = count
				bestStart = start
			}
		}
	}

	snippetStart := bestStart - 20
	if snippetStart < 0 {
		snippetStart = 0
	}
	snippetEnd := snippetStart + maxLen
	if snippetEnd > len(content) {
		snippetEnd = len(content)
	}

	snippet := strings.TrimSpace(content[snippetStart:snippetEnd])
	prefix, suffix := "", ""
	if snippetStart > 0 {
		prefix = "..."
	}
	if snippetEnd < len(content) {
		suffix = "..."
	}
	return prefix + snippet + suffix
}
