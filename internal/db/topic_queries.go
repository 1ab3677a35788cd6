package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertTopicParams identifies a topic by its cluster fingerprint.
type UpsertTopicParams struct {
	Title              string
	Description        string
	Keywords           []string
	ClusterFingerprint string
	SeenAt             time.Time
}

// TopicRef is the handle returned by topic writes.
type TopicRef struct {
	TopicID   int64  `json:"topic_id"`
	TopicUUID string `json:"topic_uuid"`
	Title     string `json:"title"`
}

// ActiveTopic is a topic seen inside the ranking window.
type ActiveTopic struct {
	TopicID     int64     `json:"topic_id"`
	TopicUUID   string    `json:"topic_uuid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// TopicDetail is a topic with decoded keywords.
type TopicDetail struct {
	ActiveTopic
	Keywords []string `json:"keywords"`
}

// MemberArticle is one article attached to a topic, joined with its source
// and optional leaning record.
type MemberArticle struct {
	ArticleID      int64     `json:"article_id"`
	ArticleUUID    string    `json:"article_uuid"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Summary        string    `json:"summary,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
	SourceID       int64     `json:"source_id"`
	SourceName     string    `json:"source_name"`
	AuthorityScore float64   `json:"authority_score"`
	SideLabel      string    `json:"side_label"`
	Leaning        *string   `json:"leaning,omitempty"`
	Score          *int      `json:"score,omitempty"`
	Confidence     *int      `json:"confidence,omitempty"`
	Explanation    *string   `json:"explanation,omitempty"`
}

// UpsertTopic creates a topic or refreshes last_seen_at on the existing row.
// created reports whether the fingerprint was new.
func (p *Pool) UpsertTopic(ctx context.Context, params UpsertTopicParams) (TopicRef, bool, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return TopicRef{}, false, fmt.Errorf("topic title is required")
	}
	fingerprint := strings.TrimSpace(params.ClusterFingerprint)
	if fingerprint == "" {
		return TopicRef{}, false, fmt.Errorf("cluster fingerprint is required")
	}
	seenAt := params.SeenAt.UTC()
	if params.SeenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	keywords := params.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return TopicRef{}, false, fmt.Errorf("marshal keywords: %w", err)
	}

	const q = `
INSERT INTO news.topics (
	topic_uuid, title, description, keywords, cluster_fingerprint, first_seen_at, last_seen_at
) VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6, $6)
ON CONFLICT (cluster_fingerprint) DO UPDATE SET
	last_seen_at = GREATEST(news.topics.last_seen_at, EXCLUDED.last_seen_at)
RETURNING topic_id, topic_uuid::text, title, (xmax = 0) AS inserted
`
	var (
		ref      TopicRef
		inserted bool
	)
	err = p.QueryRow(ctx, q,
		uuid.NewString(), title, strings.TrimSpace(params.Description), string(keywordsJSON), fingerprint, seenAt,
	).Scan(&ref.TopicID, &ref.TopicUUID, &ref.Title, &inserted)
	if err != nil {
		return TopicRef{}, false, fmt.Errorf("upsert topic %q: %w", title, err)
	}
	return ref, inserted, nil
}

// UpsertTopicMember attaches an article to a topic under sideLabel. Re-adding
// the same pair only refreshes the side label.
func (p *Pool) UpsertTopicMember(ctx context.Context, topicID, articleID int64, sideLabel string) error {
	if topicID <= 0 || articleID <= 0 {
		return fmt.Errorf("topic id and article id are required")
	}

	const q = `
INSERT INTO news.topic_members (topic_id, article_id, side_label)
VALUES ($1, $2, $3)
ON CONFLICT (topic_id, article_id) DO UPDATE SET side_label = EXCLUDED.side_label
`
	if _, err := p.Exec(ctx, q, topicID, articleID, sideLabel); err != nil {
		return fmt.Errorf("upsert topic member topic=%d article=%d: %w", topicID, articleID, err)
	}
	return nil
}

// ListActiveTopics returns topics last seen at or after since, newest first.
func (p *Pool) ListActiveTopics(ctx context.Context, since time.Time, limit int) ([]ActiveTopic, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT topic_id, topic_uuid::text, title, description, first_seen_at, last_seen_at
FROM news.topics
WHERE last_seen_at >= $1
ORDER BY last_seen_at DESC, topic_id DESC
LIMIT $2
`
	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query active topics: %w", err)
	}
	defer rows.Close()

	topics := make([]ActiveTopic, 0, limit)
	for rows.Next() {
		var t ActiveTopic
		if err := rows.Scan(&t.TopicID, &t.TopicUUID, &t.Title, &t.Description, &t.FirstSeenAt, &t.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan active topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active topics: %w", err)
	}
	return topics, nil
}

// ListTopicMemberArticles returns every member of topicID with its source and
// leaning, ordered by side then recency.
func (p *Pool) ListTopicMemberArticles(ctx context.Context, topicID int64) ([]MemberArticle, error) {
	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.title,
	a.url,
	a.summary,
	a.published_at,
	s.source_id,
	s.name,
	s.authority_score,
	m.side_label,
	b.leaning,
	b.score,
	b.confidence,
	b.explanation
FROM news.topic_members m
JOIN news.articles a ON a.article_id = m.article_id
JOIN news.sources s ON s.source_id = a.source_id
LEFT JOIN news.bias_scores b ON b.article_id = a.article_id
WHERE m.topic_id = $1
ORDER BY m.side_label ASC, a.published_at DESC, a.article_id ASC
`
	rows, err := p.Query(ctx, q, topicID)
	if err != nil {
		return nil, fmt.Errorf("query topic members: %w", err)
	}
	defer rows.Close()

	var members []MemberArticle
	for rows.Next() {
		var m MemberArticle
		if err := rows.Scan(
			&m.ArticleID, &m.ArticleUUID, &m.Title, &m.URL, &m.Summary, &m.PublishedAt,
			&m.SourceID, &m.SourceName, &m.AuthorityScore, &m.SideLabel,
			&m.Leaning, &m.Score, &m.Confidence, &m.Explanation,
		); err != nil {
			return nil, fmt.Errorf("scan topic member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic members: %w", err)
	}
	return members, nil
}

// GetTopicByUUID loads one topic or returns ErrNoRows.
func (p *Pool) GetTopicByUUID(ctx context.Context, topicUUID string) (TopicDetail, error) {
	trimmed := strings.TrimSpace(topicUUID)
	if _, err := uuid.Parse(trimmed); err != nil {
		return TopicDetail{}, fmt.Errorf("invalid topic UUID %q: %w", topicUUID, err)
	}

	const q = `
SELECT topic_id, topic_uuid::text, title, description, keywords, first_seen_at, last_seen_at
FROM news.topics
WHERE topic_uuid = $1::uuid
`
	var (
		t        TopicDetail
		keywords []byte
	)
	if err := p.QueryRow(ctx, q, trimmed).Scan(
		&t.TopicID, &t.TopicUUID, &t.Title, &t.Description, &keywords, &t.FirstSeenAt, &t.LastSeenAt,
	); err != nil {
		return TopicDetail{}, err
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &t.Keywords); err != nil {
			return TopicDetail{}, fmt.Errorf("decode topic keywords: %w", err)
		}
	}
	if t.Keywords == nil {
		t.Keywords = []string{}
	}
	return t, nil
}
