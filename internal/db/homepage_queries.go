package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertHomepageTopicParams is one rebuilt front-page row.
type UpsertHomepageTopicParams struct {
	TopicID         int64
	Title           string
	LeftArticleID   *int64
	CenterArticleID *int64
	RightArticleID  *int64
	BlindspotSide   *string
	ImportanceScore float64
	BuiltAt         time.Time
}

// ArticleBrief is the representative article shown for one side.
type ArticleBrief struct {
	ArticleID  int64  `json:"article_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceName string `json:"source_name"`
}

// HomepageEntry is a front-page row with its representatives resolved.
type HomepageEntry struct {
	TopicID         int64         `json:"topic_id"`
	TopicUUID       string        `json:"topic_uuid"`
	Title           string        `json:"title"`
	ImportanceScore float64       `json:"importance_score"`
	BlindspotSide   *string       `json:"blindspot_side"`
	BuiltAt         time.Time     `json:"built_at"`
	Left            *ArticleBrief `json:"left,omitempty"`
	Center          *ArticleBrief `json:"center,omitempty"`
	Right           *ArticleBrief `json:"right,omitempty"`
}

// UpsertHomepageTopic replaces the front-page row for a topic.
func (p *Pool) UpsertHomepageTopic(ctx context.Context, params UpsertHomepageTopicParams) error {
	if params.TopicID <= 0 {
		return fmt.Errorf("topic id is required")
	}

	const q = `
INSERT INTO news.homepage_topics (
	topic_id, title, left_article_id, center_article_id, right_article_id,
	blindspot_side, importance_score, built_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (topic_id) DO UPDATE SET
	title = EXCLUDED.title,
	left_article_id = EXCLUDED.left_article_id,
	center_article_id = EXCLUDED.center_article_id,
	right_article_id = EXCLUDED.right_article_id,
	blindspot_side = EXCLUDED.blindspot_side,
	importance_score = EXCLUDED.importance_score,
	built_at = EXCLUDED.built_at
`
	if _, err := p.Exec(ctx, q,
		params.TopicID, params.Title, params.LeftArticleID, params.CenterArticleID, params.RightArticleID,
		params.BlindspotSide, params.ImportanceScore, params.BuiltAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert homepage topic %d: %w", params.TopicID, err)
	}
	return nil
}

// PruneHomepageTopics removes rows built before cutoff.
func (p *Pool) PruneHomepageTopics(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM news.homepage_topics WHERE built_at < $1`

	tag, err := p.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune homepage topics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListHomepage returns front-page rows by importance, highest first.
func (p *Pool) ListHomepage(ctx context.Context, limit int) ([]HomepageEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	h.topic_id,
	t.topic_uuid::text,
	h.title,
	h.importance_score,
	h.blindspot_side,
	h.built_at,
	la.article_id, la.title, la.url, ls.name,
	ca.article_id, ca.title, ca.url, cs.name,
	ra.article_id, ra.title, ra.url, rs.name
FROM news.homepage_topics h
JOIN news.topics t ON t.topic_id = h.topic_id
LEFT JOIN news.articles la ON la.article_id = h.left_article_id
LEFT JOIN news.sources ls ON ls.source_id = la.source_id
LEFT JOIN news.articles ca ON ca.article_id = h.center_article_id
LEFT JOIN news.sources cs ON cs.source_id = ca.source_id
LEFT JOIN news.articles ra ON ra.article_id = h.right_article_id
LEFT JOIN news.sources rs ON rs.source_id = ra.source_id
ORDER BY h.importance_score DESC, h.built_at DESC, h.topic_id ASC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query homepage: %w", err)
	}
	defer rows.Close()

	entries := make([]HomepageEntry, 0, limit)
	for rows.Next() {
		var e HomepageEntry
		var left, center, right briefColumns
		if err := rows.Scan(
			&e.TopicID, &e.TopicUUID, &e.Title, &e.ImportanceScore, &e.BlindspotSide, &e.BuiltAt,
			&left.id, &left.title, &left.url, &left.source,
			&center.id, &center.title, &center.url, &center.source,
			&right.id, &right.title, &right.url, &right.source,
		); err != nil {
			return nil, fmt.Errorf("scan homepage row: %w", err)
		}
		e.Left = left.brief()
		e.Center = center.brief()
		e.Right = right.brief()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate homepage rows: %w", err)
	}
	return entries, nil
}

type briefColumns struct {
	id     *int64
	title  *string
	url    *string
	source *string
}

func (c briefColumns) brief() *ArticleBrief {
	if c.id == nil {
		return nil
	}
	b := &ArticleBrief{ArticleID: *c.id}
	if c.title != nil {
		b.Title = *c.title
	}
	if c.url != nil {
		b.URL = *c.url
	}
	if c.source != nil {
		b.SourceName = *c.source
	}
	return b
}
