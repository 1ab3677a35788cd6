package classify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"horse.fit/median/internal/reader"
)

const (
	DefaultPageTimeout = 5 * time.Second

	minDescriptionRunes = 51
	maxSummaryRunes     = 500
	maxExcerptRunes     = 2000
)

// PageFetcher loads an article page.
type PageFetcher func(ctx context.Context, pageURL string) (*reader.Page, error)

// Summary is what a page fetch contributed. Fields are empty when the page
// could not be read; Err is informational only.
type Summary struct {
	Title       string
	Summary     string
	Excerpt     string
	PublishedAt *time.Time
	Fetched     bool
	Err         error
}

type Summarizer struct {
	fetch PageFetcher
}

// NewSummarizer fetches pages with reader.FetchPage bounded by timeout.
func NewSummarizer(timeout time.Duration) *Summarizer {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return NewSummarizerWithFetcher(func(ctx context.Context, pageURL string) (*reader.Page, error) {
		return reader.FetchPage(ctx, pageURL, reader.FetchOptions{Timeout: timeout})
	})
}

func NewSummarizerWithFetcher(fetch PageFetcher) *Summarizer {
	return &Summarizer{fetch: fetch}
}

// FetchSummary returns a richer summary for pageURL. The page description
// replaces existing only when it is longer than fifty characters; every
// failure leaves existing untouched.
func (s *Summarizer) FetchSummary(ctx context.Context, pageURL, existing string) Summary {
	out := Summary{Summary: existing}
	if s == nil || s.fetch == nil || strings.TrimSpace(pageURL) == "" {
		return out
	}

	page, err := s.fetch(ctx, pageURL)
	if err != nil {
		out.Err = err
		return out
	}
	if page == nil {
		return out
	}

	out.Fetched = true
	out.Title = strings.TrimSpace(page.Title)
	out.PublishedAt = page.PublishedAt

	description := strings.Join(strings.Fields(page.Description), " ")
	if utf8.RuneCountInString(description) >= minDescriptionRunes {
		out.Summary, _ = reader.TruncateText(description, maxSummaryRunes)
	}

	excerpt := strings.TrimSpace(page.Excerpt)
	if excerpt == "" {
		excerpt = strings.TrimSpace(page.Text)
	}
	out.Excerpt, _ = reader.TruncateText(reader.CleanText(excerpt), maxExcerptRunes)
	return out
}
