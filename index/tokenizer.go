// Package index converts fetched pages into inverted-index postings and
// answers ranked queries against them.
package index

import (
	"strings"
	"unicode"
)

// stopWords holds the fixed set spec §4.2 requires at minimum. Kept as a
// package-level set since it never varies per call, mirroring how the
// teacher keeps its crawling constants at package scope.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "in": true, "on": true, "of": true, "to": true,
	"for": true, "with": true,
}

// Tokenize normalizes text into an ordered sequence of terms: lowercase,
// split on runs of non-word characters, drop terms of length <= 1 and
// stop-words. Repeats are preserved in order because the Indexer needs raw
// term frequencies, not a set.
func Tokenize(text string) []string {
	terms := make([]string, 0, len(text)/5)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		term := b.String()
		b.Reset()
		if len(term) <= 1 {
			return
		}
		if stopWords[term] {
			return
		}
		terms = append(terms, term)
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// TermCounts returns the frequency of each distinct term in terms alongside
// the total term count, the two quantities Indexer needs to compute
// normalized frequency (spec §4.3 step 3).
func TermCounts(terms []string) (counts map[string]int, total int) {
	counts = make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return counts, len(terms)
}

// Set returns the distinct members of terms, order-independent; used to test
// title-membership for the importance boost (spec §4.3 step 3).
func Set(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}
