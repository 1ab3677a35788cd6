// Package discovery turns oracle topic suggestions into stored topics. A
// suggestion becomes a topic only when its search hits span at least two
// sides; each hit is then stored once by fingerprint, classified when new,
// and attached to the topic under its source's side.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/classify"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/feed"
	"horse.fit/median/internal/fingerprint"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/language"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/perspective"
)

// MinSides is the number of non-empty side buckets a topic needs.
const MinSides = 2

const maxErrorMessages = 50

type Store interface {
	ListActiveSources(ctx context.Context) ([]db.Source, error)
	UpsertTopic(ctx context.Context, params db.UpsertTopicParams) (db.TopicRef, bool, error)
	FindArticleByFingerprint(ctx context.Context, fingerprint string) (int64, error)
	InsertArticle(ctx context.Context, params db.InsertArticleParams) (int64, bool, error)
	UpsertBiasScore(ctx context.Context, params db.UpsertBiasScoreParams) error
	UpsertTopicMember(ctx context.Context, topicID, articleID int64, sideLabel string) error
}

type TopicOracle interface {
	SuggestTopics(ctx context.Context) ([]oracle.TopicSuggestion, error)
}

type Searcher interface {
	Search(ctx context.Context, topic feed.Topic, sources []db.Source) feed.Result
}

type Classifier interface {
	Classify(ctx context.Context, in classify.Input) classify.Result
}

type Summarizer interface {
	FetchSummary(ctx context.Context, pageURL, existing string) classify.Summary
}

type LanguageTagger interface {
	Tag(text, declared string) string
}

// Result is the run summary returned to callers, partial or not.
type Result struct {
	TopicsDiscovered int       `json:"topicsDiscovered"`
	TopicsCreated    int       `json:"topicsCreated"`
	TopicsUpdated    int       `json:"topicsUpdated"`
	TopicsRejected   int       `json:"topicsRejected"`
	ArticlesFound    int       `json:"articlesFound"`
	ArticlesInserted int       `json:"articlesInserted"`
	ArticlesReused   int       `json:"articlesReused"`
	Errors           int       `json:"errors"`
	ErrorMessages    []string  `json:"errorMessages,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

func (r *Result) recordError(format string, args ...any) {
	r.Errors++
	if len(r.ErrorMessages) < maxErrorMessages {
		r.ErrorMessages = append(r.ErrorMessages, fmt.Sprintf(format, args...))
	}
}

type Options struct {
	Summarizer Summarizer
	Language   LanguageTagger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Pipeline struct {
	store      Store
	topics     TopicOracle
	searcher   Searcher
	classifier Classifier
	summarizer Summarizer
	language   LanguageTagger
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     zerolog.Logger
}

func NewPipeline(store Store, topics TopicOracle, searcher Searcher, classifier Classifier, opts Options, logger zerolog.Logger) *Pipeline {
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}
	return &Pipeline{
		store:      store,
		topics:     topics,
		searcher:   searcher,
		classifier: classifier,
		summarizer: opts.Summarizer,
		language:   opts.Language,
		metrics:    opts.Metrics,
		now:        now,
		logger:     logging.Component(logger, "discovery"),
	}
}

// Run executes one discovery pass. The error is non-nil only when topics
// could not be suggested or sources could not be listed; every other failure
// is counted in the result.
func (p *Pipeline) Run(ctx context.Context) (result Result, err error) {
	result.StartedAt = p.now()
	defer func() {
		result.FinishedAt = p.now()
		p.metrics.ObserveRun(metrics.PipelineDiscovery, result.FinishedAt.Sub(result.StartedAt), err)
		p.metrics.AddTopics(result.TopicsDiscovered, result.TopicsCreated, result.TopicsRejected)
		p.metrics.AddArticles(result.ArticlesInserted, result.ArticlesReused)
		p.metrics.AddItemErrors(metrics.PipelineDiscovery, result.Errors)
	}()

	suggestions, err := p.topics.SuggestTopics(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("topic suggestion failed")
		return result, fmt.Errorf("suggest topics: %w", err)
	}
	if len(suggestions) == 0 {
		return result, fmt.Errorf("suggest topics: %w", oracle.ErrEmptyTopics)
	}
	result.TopicsDiscovered = len(suggestions)

	sources, err := p.store.ListActiveSources(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("list active sources failed")
		return result, fmt.Errorf("list active sources: %w", err)
	}

	for _, suggestion := range suggestions {
		if ctx.Err() != nil {
			result.recordError("run interrupted: %v", ctx.Err())
			break
		}
		p.processTopic(ctx, suggestion, sources, &result)
	}

	p.logger.Info().
		Int("topics_discovered", result.TopicsDiscovered).
		Int("topics_created", result.TopicsCreated).
		Int("topics_updated", result.TopicsUpdated).
		Int("topics_rejected", result.TopicsRejected).
		Int("articles_found", result.ArticlesFound).
		Int("articles_inserted", result.ArticlesInserted).
		Int("errors", result.Errors).
		Msg("discovery run finished")

	return result, nil
}

func (p *Pipeline) processTopic(ctx context.Context, suggestion oracle.TopicSuggestion, sources []db.Source, result *Result) {
	log := p.logger.With().Str("topic", suggestion.Title).Logger()

	found := p.searcher.Search(ctx, feed.Topic{
		Title:       suggestion.Title,
		Description: suggestion.Description,
		Keywords:    suggestion.Keywords,
	}, sources)

	buckets := Bucket(found.Candidates)
	if filled := buckets.Filled(); filled < MinSides {
		result.TopicsRejected++
		log.Info().Int("sides", filled).Int("candidates", len(found.Candidates)).Msg("topic rejected: not enough perspectives")
		return
	}

	ref, created, err := p.store.UpsertTopic(ctx, db.UpsertTopicParams{
		Title:              suggestion.Title,
		Description:        suggestion.Description,
		Keywords:           suggestion.Keywords,
		ClusterFingerprint: fingerprint.Topic(suggestion.Title),
		SeenAt:             p.now(),
	})
	if err != nil {
		result.recordError("topic %q: %v", suggestion.Title, err)
		log.Warn().Err(err).Msg("topic upsert failed")
		return
	}
	if created {
		result.TopicsCreated++
	} else {
		result.TopicsUpdated++
	}

	for _, side := range perspective.Sides {
		for _, candidate := range buckets[side] {
			if err := p.saveMember(ctx, ref, side, candidate, result); err != nil {
				result.recordError("topic %q article %q: %v", suggestion.Title, candidate.URL, err)
				log.Warn().Err(err).Str("url", candidate.URL).Str("side", string(side)).Msg("article save failed")
			}
		}
	}

	log.Info().
		Bool("created", created).
		Int("left", len(buckets[perspective.Left])).
		Int("center", len(buckets[perspective.Center])).
		Int("right", len(buckets[perspective.Right])).
		Msg("topic stored")
}

func (p *Pipeline) saveMember(ctx context.Context, topic db.TopicRef, side perspective.Side, candidate feed.Candidate, result *Result) error {
	articleID, inserted, summary, err := p.resolveArticle(ctx, candidate)
	if err != nil {
		return err
	}

	if inserted {
		result.ArticlesInserted++
		p.classifyArticle(ctx, articleID, candidate, summary, result)
	} else {
		result.ArticlesReused++
	}

	if err := p.store.UpsertTopicMember(ctx, topic.TopicID, articleID, string(side)); err != nil {
		return err
	}
	result.ArticlesFound++
	return nil
}

// resolveArticle returns the stored article for candidate, inserting it with
// a fetched summary when its fingerprint is new.
func (p *Pipeline) resolveArticle(ctx context.Context, candidate feed.Candidate) (int64, bool, classify.Summary, error) {
	summary := classify.Summary{Summary: candidate.Snippet}

	articleID, err := p.store.FindArticleByFingerprint(ctx, candidate.Fingerprint)
	if err == nil {
		return articleID, false, summary, nil
	}
	if !db.IsNoRows(err) {
		return 0, false, summary, fmt.Errorf("lookup article: %w", err)
	}

	if p.summarizer != nil {
		summary = p.summarizer.FetchSummary(ctx, candidate.URL, candidate.Snippet)
		if summary.Err != nil {
			p.logger.Debug().Err(summary.Err).Str("url", candidate.URL).Msg("summary fetch failed; keeping feed snippet")
		}
	}

	publishedAt := p.now()
	switch {
	case candidate.PublishedAt != nil:
		publishedAt = candidate.PublishedAt.UTC()
	case summary.PublishedAt != nil:
		publishedAt = summary.PublishedAt.UTC()
	}

	lang := language.CodeOr(candidate.Source.Language, language.Default)
	if p.language != nil {
		lang = p.language.Tag(strings.TrimSpace(candidate.Title+". "+summary.Summary), candidate.Source.Language)
	}

	articleID, inserted, err := p.store.InsertArticle(ctx, db.InsertArticleParams{
		SourceID:    candidate.Source.SourceID,
		URL:         candidate.URL,
		Title:       candidate.Title,
		Summary:     summary.Summary,
		Excerpt:     summary.Excerpt,
		PublishedAt: publishedAt,
		Fingerprint: candidate.Fingerprint,
		Lang:        lang,
	})
	return articleID, inserted, summary, err
}

// classifyArticle never fails the member save; a bias score write error is
// counted and the article stays attached.
func (p *Pipeline) classifyArticle(ctx context.Context, articleID int64, candidate feed.Candidate, summary classify.Summary, result *Result) {
	verdict := p.classifier.Classify(ctx, classify.Input{
		Title:          candidate.Title,
		Summary:        summary.Summary,
		SourceBiasHint: candidate.Source.BiasLabel,
		Excerpt:        summary.Excerpt,
	})
	if verdict.Fallback {
		p.metrics.IncClassifierFallback()
	}

	if err := p.store.UpsertBiasScore(ctx, db.UpsertBiasScoreParams{
		ArticleID:   articleID,
		Leaning:     string(verdict.Leaning),
		Score:       verdict.Score,
		Confidence:  verdict.Confidence,
		Explanation: verdict.Explanation,
		Model:       verdict.Model,
	}); err != nil {
		result.recordError("bias score for article %d: %v", articleID, err)
		p.logger.Warn().Err(err).Int64("article_id", articleID).Msg("bias score write failed")
	}
}
