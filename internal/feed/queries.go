package feed

import (
	"strings"
	"unicode/utf8"
)

const (
	maxPrefixKeywords = 8
	minPrefixKeywords = 2
	phraseKeywords    = 4
	pairKeywords      = 4
	minPhraseRunes    = 4
)

// Topic is what the searcher needs to know about a candidate topic.
type Topic struct {
	Title       string
	Description string
	Keywords    []string
}

// Text is the string embedded as the topic side of relevance checks.
func (t Topic) Text() string {
	parts := []string{strings.TrimSpace(t.Title), strings.TrimSpace(t.Description)}
	parts = append(parts, cleanKeywords(t.Keywords)...)
	return strings.TrimSpace(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

// BuildQueries derives the ordered, de-duplicated query set for a topic: the
// title, all keywords, keyword prefixes from eight down to two, quoted phrases
// for the first four keywords longer than three characters, and keyword pairs
// drawn from the first four.
func BuildQueries(t Topic) []string {
	keywords := cleanKeywords(t.Keywords)

	candidates := []string{t.Title, strings.Join(keywords, " ")}

	for n := min(maxPrefixKeywords, len(keywords)); n >= minPrefixKeywords; n-- {
		candidates = append(candidates, strings.Join(keywords[:n], " "))
	}

	for _, kw := range keywords[:min(phraseKeywords, len(keywords))] {
		if utf8.RuneCountInString(kw) >= minPhraseRunes {
			candidates = append(candidates, `"`+kw+`"`)
		}
	}

	head := keywords[:min(pairKeywords, len(keywords))]
	for i := 0; i < len(head); i++ {
		for j := i + 1; j < len(head); j++ {
			candidates = append(candidates, head[i]+" "+head[j])
		}
	}

	queries := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		query := strings.Join(strings.Fields(candidate), " ")
		if query == "" || query == `""` {
			continue
		}
		key := strings.ToLower(query)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, query)
	}
	return queries
}

func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		trimmed := strings.Join(strings.Fields(kw), " ")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
