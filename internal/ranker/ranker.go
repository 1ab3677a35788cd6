// Package ranker rebuilds the homepage projection: one row per recently active
// topic with a representative article per side, the first uncovered side and
// an importance score.
package ranker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/perspective"
)

const (
	DefaultActiveWindow = 24 * time.Hour
	DefaultRetention    = 48 * time.Hour
	DefaultTopicLimit   = 100

	maxErrorMessages = 50
)

type Store interface {
	ListActiveTopics(ctx context.Context, since time.Time, limit int) ([]db.ActiveTopic, error)
	ListTopicMemberArticles(ctx context.Context, topicID int64) ([]db.MemberArticle, error)
	UpsertHomepageTopic(ctx context.Context, params db.UpsertHomepageTopicParams) error
	PruneHomepageTopics(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result is the rebuild summary.
type Result struct {
	TopicsProcessed        int       `json:"topicsProcessed"`
	HomepageEntriesCreated int       `json:"homepageEntriesCreated"`
	TopicsSkipped          int       `json:"topicsSkipped"`
	Pruned                 int64     `json:"pruned"`
	Errors                 int       `json:"errors"`
	ErrorMessages          []string  `json:"errorMessages,omitempty"`
	BuiltAt                time.Time `json:"builtAt"`
}

func (r *Result) recordError(format string, args ...any) {
	r.Errors++
	if len(r.ErrorMessages) < maxErrorMessages {
		r.ErrorMessages = append(r.ErrorMessages, fmt.Sprintf(format, args...))
	}
}

type Options struct {
	ActiveWindow time.Duration
	Retention    time.Duration
	TopicLimit   int
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

type Ranker struct {
	store   Store
	window  time.Duration
	retain  time.Duration
	limit   int
	metrics *metrics.Metrics
	now     func() time.Time
	logger  zerolog.Logger
}

func New(store Store, opts Options, logger zerolog.Logger) *Ranker {
	r := &Ranker{
		store:   store,
		window:  opts.ActiveWindow,
		retain:  opts.Retention,
		limit:   opts.TopicLimit,
		metrics: opts.Metrics,
		now:     opts.Now,
		logger:  logging.Component(logger, "ranker"),
	}
	if r.window <= 0 {
		r.window = DefaultActiveWindow
	}
	if r.retain <= 0 {
		r.retain = DefaultRetention
	}
	if r.limit <= 0 {
		r.limit = DefaultTopicLimit
	}
	if r.now == nil {
		r.now = globaltime.UTC
	}
	return r
}

// Rebuild recomputes every active topic's homepage row and then prunes rows
// built before the retention cutoff. It fails only when active topics cannot
// be listed.
func (r *Ranker) Rebuild(ctx context.Context) (result Result, err error) {
	builtAt := r.now().UTC()
	result.BuiltAt = builtAt
	defer func() {
		r.metrics.ObserveRun(metrics.PipelineRanker, r.now().Sub(builtAt), err)
		r.metrics.AddItemErrors(metrics.PipelineRanker, result.Errors)
		r.metrics.AddHomepage(result.HomepageEntriesCreated, result.Pruned)
	}()

	topics, err := r.store.ListActiveTopics(ctx, builtAt.Add(-r.window), r.limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("list active topics failed")
		return result, fmt.Errorf("list active topics: %w", err)
	}

	for _, topic := range topics {
		result.TopicsProcessed++
		if err := r.rankTopic(ctx, topic, builtAt, &result); err != nil {
			result.recordError("topic %d: %v", topic.TopicID, err)
			r.logger.Warn().Err(err).Int64("topic_id", topic.TopicID).Msg("homepage entry failed")
		}
	}

	pruned, err := r.store.PruneHomepageTopics(ctx, builtAt.Add(-r.retain))
	if err != nil {
		result.recordError("prune: %v", err)
		r.logger.Warn().Err(err).Msg("homepage prune failed")
	} else {
		result.Pruned = pruned
	}

	r.logger.Info().
		Int("topics_processed", result.TopicsProcessed).
		Int("entries", result.HomepageEntriesCreated).
		Int("skipped", result.TopicsSkipped).
		Int64("pruned", result.Pruned).
		Int("errors", result.Errors).
		Msg("homepage rebuild finished")

	return result, nil
}

func (r *Ranker) rankTopic(ctx context.Context, topic db.ActiveTopic, builtAt time.Time, result *Result) error {
	members, err := r.store.ListTopicMemberArticles(ctx, topic.TopicID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if len(members) == 0 {
		result.TopicsSkipped++
		return nil
	}

	entry := BuildEntry(topic, members, builtAt)
	if err := r.store.UpsertHomepageTopic(ctx, entry); err != nil {
		return err
	}
	result.HomepageEntriesCreated++
	return nil
}

// BuildEntry assembles the homepage row for one topic.
func BuildEntry(topic db.ActiveTopic, members []db.MemberArticle, builtAt time.Time) db.UpsertHomepageTopicParams {
	reps := Representatives(members)
	entry := db.UpsertHomepageTopicParams{
		TopicID:         topic.TopicID,
		Title:           topic.Title,
		LeftArticleID:   articleID(reps, perspective.Left),
		CenterArticleID: articleID(reps, perspective.Center),
		RightArticleID:  articleID(reps, perspective.Right),
		ImportanceScore: Importance(members, builtAt).Score,
		BuiltAt:         builtAt,
	}
	if side, ok := Blindspot(reps); ok {
		label := string(side)
		entry.BlindspotSide = &label
	}
	return entry
}

func articleID(reps map[perspective.Side]db.MemberArticle, side perspective.Side) *int64 {
	rep, ok := reps[side]
	if !ok {
		return nil
	}
	id := rep.ArticleID
	return &id
}
