package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultSearchLimit caps search results when the caller passes no limit.
const DefaultSearchLimit = 20

// TopicSearchHit is a topic matching a search term with per-side coverage.
type TopicSearchHit struct {
	TopicUUID   string    `json:"topic_uuid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Left        int64     `json:"left"`
	Center      int64     `json:"center"`
	Right       int64     `json:"right"`
}

// ArticleSearchHit is an article matching a search term.
type ArticleSearchHit struct {
	ArticleUUID string    `json:"article_uuid"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	SourceName  string    `json:"source_name"`
	PublishedAt time.Time `json:"published_at"`
	Leaning     *string   `json:"leaning,omitempty"`
}

// SearchResults groups topic and article matches.
type SearchResults struct {
	Query    string             `json:"query"`
	Topics   []TopicSearchHit   `json:"topics"`
	Articles []ArticleSearchHit `json:"articles"`
}

// Search runs a case-insensitive substring match over topic and article titles.
func (p *Pool) Search(ctx context.Context, term string, limit int) (*SearchResults, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return nil, fmt.Errorf("search term is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	pattern := "%" + escapeLike(trimmed) + "%"
	results := &SearchResults{
		Query:    trimmed,
		Topics:   make([]TopicSearchHit, 0, limit),
		Articles: make([]ArticleSearchHit, 0, limit),
	}

	const topicQuery = `
SELECT
	t.topic_uuid::text,
	t.title,
	t.description,
	t.last_seen_at,
	COUNT(*) FILTER (WHERE m.side_label = 'Left') AS left_count,
	COUNT(*) FILTER (WHERE m.side_label = 'Center') AS center_count,
	COUNT(*) FILTER (WHERE m.side_label = 'Right') AS right_count
FROM news.topics t
LEFT JOIN news.topic_members m ON m.topic_id = t.topic_id
WHERE t.title ILIKE $1 OR t.description ILIKE $1
GROUP BY t.topic_id
ORDER BY t.last_seen_at DESC, t.topic_id DESC
LIMIT $2
`
	rows, err := p.Query(ctx, topicQuery, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	for rows.Next() {
		var hit TopicSearchHit
		if err := rows.Scan(&hit.TopicUUID, &hit.Title, &hit.Description, &hit.LastSeenAt, &hit.Left, &hit.Center, &hit.Right); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan topic hit: %w", err)
		}
		results.Topics = append(results.Topics, hit)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate topic hits: %w", err)
	}
	rows.Close()

	const articleQuery = `
SELECT a.article_uuid::text, a.title, a.url, s.name, a.published_at, b.leaning
FROM news.articles a
JOIN news.sources s ON s.source_id = a.source_id
LEFT JOIN news.bias_scores b ON b.article_id = a.article_id
WHERE a.title ILIKE $1 OR a.summary ILIKE $1
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT $2
`
	rows, err = p.Query(ctx, articleQuery, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hit ArticleSearchHit
		if err := rows.Scan(&hit.ArticleUUID, &hit.Title, &hit.URL, &hit.SourceName, &hit.PublishedAt, &hit.Leaning); err != nil {
			return nil, fmt.Errorf("scan article hit: %w", err)
		}
		results.Articles = append(results.Articles, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article hits: %w", err)
	}

	return results, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
