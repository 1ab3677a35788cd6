// Package feed runs the multi-query news search behind topic discovery:
// building query variants, resolving redirect links, de-duplicating hits and
// matching them to known sources.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/fingerprint"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/relevance"
)

const (
	DefaultQueryDelay    = 500 * time.Millisecond
	DefaultRecencyWindow = 72 * time.Hour
)

type ItemSearcher interface {
	Search(ctx context.Context, query string) ([]Item, error)
}

type LinkResolver interface {
	Resolve(ctx context.Context, item Item) (string, error)
}

type RelevanceChecker interface {
	Embed(ctx context.Context, text string) (relevance.Vector, error)
	Check(ctx context.Context, topic relevance.Vector, text string) relevance.Verdict
}

// Candidate is a search hit matched to a source.
type Candidate struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt *time.Time
	Source      db.Source
	Fingerprint string
	Query       string
	Similarity  float64
}

// Result holds the candidates found for one topic plus skip counters.
type Result struct {
	Candidates         []Candidate
	Queries            int
	QueryFailures      int
	Items              int
	Invalid            int
	Stale              int
	Unresolved         int
	Duplicates         int
	Unmatched          int
	Irrelevant         int
	RelevanceUnchecked int
}

type Options struct {
	QueryDelay    time.Duration
	RecencyWindow time.Duration
	Now           func() time.Time
}

type Searcher struct {
	items     ItemSearcher
	resolver  LinkResolver
	relevance RelevanceChecker
	limiter   *rate.Limiter
	window    time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSearcher wires a searcher. checker may be nil, in which case every
// matched item is kept.
func NewSearcher(items ItemSearcher, resolver LinkResolver, checker RelevanceChecker, opts Options, logger zerolog.Logger) *Searcher {
	delay := opts.QueryDelay
	if delay < 0 {
		delay = DefaultQueryDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	window := opts.RecencyWindow
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}

	return &Searcher{
		items:     items,
		resolver:  resolver,
		relevance: checker,
		limiter:   rate.NewLimiter(limit, 1),
		window:    window,
		now:       now,
		logger:    logging.Component(logger, "feed_searcher"),
	}
}

// Search runs every query for topic in order and returns all matched hits.
// Failures on one query or item are logged and skipped.
func (s *Searcher) Search(ctx context.Context, topic Topic, sources []db.Source) Result {
	var result Result
	queries := BuildQueries(topic)
	cutoff := s.now().Add(-s.window)

	var topicVec relevance.Vector
	if s.relevance != nil {
		vec, err := s.relevance.Embed(ctx, topic.Text())
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic.Title).Msg("topic embedding unavailable; relevance filter disabled")
		} else {
			topicVec = vec
		}
	}

	seenURLs := make(map[string]struct{})
	seenFingerprints := make(map[string]struct{})

	for _, query := range queries {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic.Title).Msg("search interrupted")
			break
		}

		result.Queries++
		items, err := s.items.Search(ctx, query)
		if err != nil {
			result.QueryFailures++
			s.logger.Warn().Err(err).Str("query", query).Msg("search query failed")
			continue
		}

		for _, item := range items {
			result.Items++
			if strings.TrimSpace(item.Title) == "" {
				result.Invalid++
				continue
			}
			if item.PublishedAt != nil && item.PublishedAt.Before(cutoff) {
				result.Stale++
				continue
			}

			resolved, err := s.resolver.Resolve(ctx, item)
			if err != nil {
				result.Unresolved++
				s.logger.Debug().Err(err).Str("link", item.Link).Msg("skip unresolved item")
				continue
			}

			normalized := fingerprint.NormalizeURL(resolved)
			if _, dup := seenURLs[normalized]; dup {
				result.Duplicates++
				continue
			}
			seenURLs[normalized] = struct{}{}

			text := strings.TrimSpace(item.Title + " " + item.Snippet)
			source, ok := MatchSource(sources, normalized, text)
			if !ok {
				result.Unmatched++
				continue
			}

			fp := fingerprint.Article(item.Title, fingerprint.Domain(source.HomeURL))
			if _, dup := seenFingerprints[fp]; dup {
				result.Duplicates++
				continue
			}

			var similarity float64
			if s.relevance != nil && len(topicVec) > 0 {
				verdict := s.relevance.Check(ctx, topicVec, text)
				if !verdict.Checked {
					result.RelevanceUnchecked++
					s.logger.Debug().Err(verdict.Err).Str("link", normalized).Msg("relevance check skipped")
				} else if !verdict.Relevant {
					result.Irrelevant++
					continue
				}
				similarity = verdict.Similarity
			}
			seenFingerprints[fp] = struct{}{}

			result.Candidates = append(result.Candidates, Candidate{
				Title:       item.Title,
				URL:         normalized,
				Snippet:     item.Snippet,
				PublishedAt: item.PublishedAt,
				Source:      source,
				Fingerprint: fp,
				Query:       query,
				Similarity:  similarity,
			})
		}
	}

	s.logger.Info().
		Str("topic", topic.Title).
		Int("queries", result.Queries).
		Int("query_failures", result.QueryFailures).
		Int("candidates", len(result.Candidates)).
		Int("stale", result.Stale).
		Int("unresolved", result.Unresolved).
		Int("duplicates", result.Duplicates).
		Int("unmatched", result.Unmatched).
		Int("irrelevant", result.Irrelevant).
		Msg("topic search finished")

	return result
}
