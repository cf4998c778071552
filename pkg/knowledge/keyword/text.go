package keyword

import (
	"regexp"
	"strings"
)

var (
	wordPattern    = regexp.MustCompile(`\b[a-z]{3,}\b`)
	nonWordPattern = regexp.MustCompile(`[^a-z0-9\s]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "are": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"a": {}, "an": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "can": {}, "could": {}, "should": {}, "would": {},
	"will": {}, "shall": {}, "may": {}, "might": {}, "must": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"be": {}, "been": {}, "being": {}, "was": {}, "were": {},
	"get": {}, "got": {}, "tell": {}, "know": {}, "about": {},
}

// cleanText lowercases, strips punctuation, and collapses whitespace.
func cleanText(text string) string {
	text = strings.ToLower(text)
	text = nonWordPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// extractKeywords pulls unique meaningful words (3+ letters, stop words
// removed) from text, preserving first-seen order.
func extractKeywords(text string) []string {
	words := wordPattern.FindAllString(cleanText(text), -1)
	seen := make(map[string]struct{}, len(words))
	var keywords []string
	for _, word := range words {
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

// textSimilarity computes Jaccard similarity over the keyword sets of two
// texts.
func textSimilarity(a, b string) float64 {
	wordsA := extractKeywords(a)
	wordsB := extractKeywords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}

	intersection := 0
	union := len(setA)
	seenB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		if _, dup := seenB[w]; dup {
			continue
		}
		seenB[w] = struct{}{}
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// matchingKeywords finds query keywords present in entry keywords, counting
// substring overlaps as matches.
func matchingKeywords(queryKeywords, entryKeywords []string) []string {
	if len(queryKeywords) == 0 || len(entryKeywords) == 0 {
		return nil
	}

	matched := make(map[string]struct{})
	for _, q := range queryKeywords {
		ql := strings.ToLower(q)
		for _, e := range entryKeywords {
			el := strings.ToLower(e)
			if ql == el || strings.Contains(el, ql) || strings.Contains(ql, el) {
				matched[ql] = struct{}{}
				break
			}
		}
	}

	out := make([]string, 0, len(matched))
	for k := range matched {
		out = append(out, k)
	}
	return out
}
