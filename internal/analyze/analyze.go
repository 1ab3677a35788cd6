// Package analyze classifies a single article URL on demand, registering its
// source when the domain is unknown.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/classify"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/fingerprint"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/language"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/perspective"
	"horse.fit/median/internal/reader"
)

var ErrInvalidURL = errors.New("invalid article URL")

const (
	autoSourceAuthority = 0.5
	autoSourceCountry   = "US"
	maxExcerptRunes     = 2000
	maxFallbackSummary  = 300
)

type Store interface {
	FindArticleByURL(ctx context.Context, articleURL string) (int64, error)
	GetArticleDetail(ctx context.Context, articleID int64) (db.ArticleDetail, error)
	FindSourceByDomain(ctx context.Context, domain string) (db.Source, error)
	EnsureSource(ctx context.Context, params db.UpsertSourceParams) (db.Source, bool, error)
	InsertArticle(ctx context.Context, params db.InsertArticleParams) (int64, bool, error)
	UpsertBiasScore(ctx context.Context, params db.UpsertBiasScoreParams) error
}

type Classifier interface {
	Classify(ctx context.Context, in classify.Input) classify.Result
}

type PageFetcher func(ctx context.Context, pageURL string) (*reader.Page, error)

type LanguageTagger interface {
	Tag(text, declared string) string
}

// Analysis is the outcome of one on-demand classification.
type Analysis struct {
	Article       db.ArticleDetail          `json:"article"`
	Bias          oracle.BiasClassification `json:"bias"`
	Model         string                    `json:"model"`
	Cached        bool                      `json:"cached"`
	Fallback      bool                      `json:"fallback"`
	SourceCreated bool                      `json:"sourceCreated"`
}

type Options struct {
	Fetch    PageFetcher
	Language LanguageTagger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

type Analyzer struct {
	store      Store
	classifier Classifier
	fetch      PageFetcher
	language   LanguageTagger
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     zerolog.Logger
}

func New(store Store, classifier Classifier, opts Options, logger zerolog.Logger) *Analyzer {
	fetch := opts.Fetch
	if fetch == nil {
		fetch = func(ctx context.Context, pageURL string) (*reader.Page, error) {
			return reader.FetchPage(ctx, pageURL, reader.FetchOptions{})
		}
	}
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}
	return &Analyzer{
		store:      store,
		classifier: classifier,
		fetch:      fetch,
		language:   opts.Language,
		metrics:    opts.Metrics,
		now:        now,
		logger:     logging.Component(logger, "analyzer"),
	}
}

// Analyze returns the stored classification for rawURL when one exists and
// otherwise fetches, stores and classifies the article.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (analysis *Analysis, err error) {
	started := a.now()
	defer func() {
		a.metrics.ObserveRun(metrics.PipelineAnalyze, a.now().Sub(started), err)
	}()

	target, err := parseArticleURL(rawURL)
	if err != nil {
		return nil, err
	}
	normalized := fingerprint.NormalizeURL(target.String())
	domain := fingerprint.Domain(target.String())

	existingID, err := a.store.FindArticleByURL(ctx, normalized)
	switch {
	case err == nil:
		detail, err := a.store.GetArticleDetail(ctx, existingID)
		if err != nil {
			return nil, fmt.Errorf("load article %d: %w", existingID, err)
		}
		if detail.HasBiasScore() {
			return cachedAnalysis(detail), nil
		}
	case db.IsNoRows(err):
		existingID = 0
	default:
		return nil, fmt.Errorf("lookup article: %w", err)
	}

	page := a.readPage(ctx, target)

	source, created, err := a.resolveSource(ctx, domain)
	if err != nil {
		return nil, err
	}

	articleID := existingID
	if articleID == 0 {
		articleID, _, err = a.store.InsertArticle(ctx, db.InsertArticleParams{
			SourceID:    source.SourceID,
			URL:         normalized,
			Title:       page.title,
			Summary:     page.summary,
			Excerpt:     page.excerpt,
			PublishedAt: page.publishedAt,
			Fingerprint: fingerprint.Article(page.title, fingerprint.Domain(source.HomeURL)),
			Lang:        a.tagLanguage(page.title+". "+page.summary, source.Language),
		})
		if err != nil {
			return nil, fmt.Errorf("store article: %w", err)
		}
	}

	verdict := a.classifier.Classify(ctx, classify.Input{
		Title:          page.title,
		Summary:        page.summary,
		SourceBiasHint: source.BiasLabel,
		Excerpt:        page.excerpt,
	})
	if verdict.Fallback {
		a.metrics.IncClassifierFallback()
	}
	if err := a.store.UpsertBiasScore(ctx, db.UpsertBiasScoreParams{
		ArticleID:   articleID,
		Leaning:     string(verdict.Leaning),
		Score:       verdict.Score,
		Confidence:  verdict.Confidence,
		Explanation: verdict.Explanation,
		Model:       verdict.Model,
	}); err != nil {
		return nil, fmt.Errorf("store bias score: %w", err)
	}

	detail, err := a.store.GetArticleDetail(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", articleID, err)
	}

	a.logger.Info().
		Str("url", normalized).
		Int64("article_id", articleID).
		Str("leaning", string(verdict.Leaning)).
		Bool("fallback", verdict.Fallback).
		Bool("source_created", created).
		Msg("article analyzed")

	return &Analysis{
		Article:       detail,
		Bias:          verdict.BiasClassification,
		Model:         verdict.Model,
		Fallback:      verdict.Fallback,
		SourceCreated: created,
	}, nil
}

type pageFields struct {
	title       string
	summary     string
	excerpt     string
	publishedAt time.Time
}

// readPage falls back to the host name as title when the page cannot be read.
func (a *Analyzer) readPage(ctx context.Context, target *url.URL) pageFields {
	fields := pageFields{title: target.Hostname(), publishedAt: a.now()}

	page, err := a.fetch(ctx, target.String())
	if err != nil || page == nil {
		a.logger.Warn().Err(err).Str("url", target.String()).Msg("article fetch failed; using host name")
		return fields
	}

	if title := strings.TrimSpace(page.Title); title != "" {
		fields.title = title
	}
	summary := strings.TrimSpace(page.Description)
	if summary == "" {
		summary, _ = reader.TruncateText(page.Excerpt, maxFallbackSummary)
	}
	fields.summary = summary
	fields.excerpt, _ = reader.TruncateText(firstNonEmpty(page.Text, page.Excerpt, summary), maxExcerptRunes)
	if page.PublishedAt != nil {
		fields.publishedAt = page.PublishedAt.UTC()
	}
	return fields
}

func (a *Analyzer) resolveSource(ctx context.Context, domain string) (db.Source, bool, error) {
	source, err := a.store.FindSourceByDomain(ctx, domain)
	if err == nil {
		return source, false, nil
	}
	if !db.IsNoRows(err) {
		return db.Source{}, false, fmt.Errorf("lookup source: %w", err)
	}

	source, created, err := a.store.EnsureSource(ctx, db.UpsertSourceParams{
		Name:           domain,
		HomeURL:        "https://" + domain,
		BiasLabel:      perspective.LabelCenter,
		AuthorityScore: autoSourceAuthority,
		Country:        autoSourceCountry,
		Language:       language.Default,
		Active:         true,
	})
	if err != nil {
		return db.Source{}, false, fmt.Errorf("register source %q: %w", domain, err)
	}
	return source, created, nil
}

func (a *Analyzer) tagLanguage(text, declared string) string {
	if a.language == nil {
		return language.CodeOr(declared, language.Default)
	}
	return a.language.Tag(text, declared)
}

func cachedAnalysis(detail db.ArticleDetail) *Analysis {
	bias := oracle.BiasClassification{
		Leaning:    perspective.Side(*detail.Leaning),
		Score:      *detail.Score,
		Confidence: *detail.Confidence,
	}
	if detail.Explanation != nil {
		bias.Explanation = *detail.Explanation
	}
	return &Analysis{Article: detail, Bias: bias, Cached: true}
}

func parseArticleURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
