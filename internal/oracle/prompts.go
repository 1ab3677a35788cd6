package oracle

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	topicSystemPrompt = "You are a news analyst. Always respond with valid JSON only. Focus on the most current political stories."
	biasSystemPrompt  = "You are a neutral media analyst. Always respond with valid JSON only."

	topicTemperature = 0.7
	biasTemperature  = 0.3

	excerptPromptLimit = 1000
)

const topicUserPrompt = `Identify the 12 most important political news stories in the United States right now.

Select stories that:
1. broke within the last 24 hours, never older than 48 hours unless there is a major new development
2. affect many people or mark a significant policy, legal or electoral development
3. will be covered by Left, Center and Right leaning outlets
4. are national or international in scope

For each story provide:
- title: a specific headline-style title of at most 100 characters
- description: 2-3 sentences on what happened, why it matters now and why coverage spans perspectives
- keywords: 8-12 search phrases specific to this exact story. Prefer proper nouns (people, places,
  organizations, bills, court cases) and concrete actions ("votes", "rules", "announces").
  Avoid generic words such as "policy", "government", "election" without context.

Respond with strict JSON only:
{
  "topics": [
    {
      "title": "Specific story title",
      "description": "What happened, why it matters, why it is covered widely",
      "keywords": ["keyword one", "keyword two", "keyword three"]
    }
  ]
}`

func buildBiasPrompt(req BiasRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the following article and classify its political bias.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	fmt.Fprintf(&b, "Snippet: %s\n", strings.TrimSpace(req.Snippet))
	if hint := strings.TrimSpace(req.SourceBiasHint); hint != "" {
		fmt.Fprintf(&b, "Outlet bias hint: %s\n", hint)
	}
	if excerpt := strings.TrimSpace(req.FullTextExcerpt); excerpt != "" {
		fmt.Fprintf(&b, "Full text excerpt: %s\n", clipRunes(excerpt, excerptPromptLimit))
	}
	b.WriteString(`
Respond with strict JSON only:
{
  "leaning": "Left|Center|Right",
  "score": 0-100,
  "confidence": 0-100,
  "explanation": "1-2 sentence rationale"
}
where score 0 is fully Left, 50 is Center and 100 is fully Right.`)
	return b.String()
}

func clipRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
