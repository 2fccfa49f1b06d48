// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"strings"
	"unicode"
)

// topicalFit measures thematic keyword coverage: the fraction of topic terms
// (query terms plus the classifier's matched field keywords) that appear in
// the document text. It is a narrower signal than raw semantic similarity
// and deliberately ignores document length.
func topicalFit(topicTerms []string, docText string) float64 {
	if len(topicTerms) == 0 {
		return 0
	}
	docSet := make(map[string]bool)
	for _, tok := range topicTokens(docText) {
		docSet[tok] = true
	}
	matched := 0
	counted := make(map[string]bool, len(topicTerms))
	for _, term := range topicTerms {
		if counted[term] {
			continue
		}
		counted[term] = true
		if docSet[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(counted))
}

var topicStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "for": true, "to": true, "with": true, "by": true,
	"from": true, "as": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "this": true, "that": true, "we": true, "our": true, "it": true,
}

// topicTokens lowercases and splits text, dropping stopwords and one-letter
// fragments.
func topicTokens(s string) []string {
	raw := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := raw[:0]
	for _, tok := range raw {
		if len(tok) < 2 || topicStopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
