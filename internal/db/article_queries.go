package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertArticleParams carries one discovered article.
type InsertArticleParams struct {
	SourceID    int64
	URL         string
	Title       string
	Summary     string
	Excerpt     string
	PublishedAt time.Time
	Fingerprint string
	Lang        string
}

// UpsertBiasScoreParams carries one leaning record for an article.
type UpsertBiasScoreParams struct {
	ArticleID   int64
	Leaning     string
	Score       int
	Confidence  int
	Explanation string
	Model       string
}

// FindArticleByFingerprint returns the article ID for fingerprint or ErrNoRows.
func (p *Pool) FindArticleByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	const q = `SELECT article_id FROM news.articles WHERE fingerprint = $1`

	var articleID int64
	if err := p.QueryRow(ctx, q, strings.TrimSpace(fingerprint)).Scan(&articleID); err != nil {
		return 0, err
	}
	return articleID, nil
}

// InsertArticle stores an article unless its fingerprint is already known.
// inserted is false when an existing row was returned instead.
func (p *Pool) InsertArticle(ctx context.Context, params InsertArticleParams) (int64, bool, error) {
	if params.SourceID <= 0 {
		return 0, false, fmt.Errorf("source id is required")
	}
	fingerprint := strings.TrimSpace(params.Fingerprint)
	if fingerprint == "" {
		return 0, false, fmt.Errorf("fingerprint is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return 0, false, fmt.Errorf("title is required")
	}
	publishedAt := params.PublishedAt.UTC()
	if params.PublishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO news.articles (
	article_uuid, source_id, url, title, summary, excerpt, published_at, fingerprint, lang
) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING article_id
`
	var articleID int64
	err := p.QueryRow(ctx, q,
		uuid.NewString(), params.SourceID, strings.TrimSpace(params.URL), strings.TrimSpace(params.Title),
		params.Summary, params.Excerpt, publishedAt, fingerprint, defaultString(params.Lang, "en"),
	).Scan(&articleID)
	if err == nil {
		return articleID, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}

	// Lost the race to a concurrent insert with the same fingerprint.
	articleID, err = p.FindArticleByFingerprint(ctx, fingerprint)
	if err != nil {
		return 0, false, fmt.Errorf("lookup article after conflict: %w", err)
	}
	return articleID, false, nil
}

// UpsertBiasScore writes the leaning for an article, replacing any prior record.
func (p *Pool) UpsertBiasScore(ctx context.Context, params UpsertBiasScoreParams) error {
	if params.ArticleID <= 0 {
		return fmt.Errorf("article id is required")
	}

	const q = `
INSERT INTO news.bias_scores (article_id, leaning, score, confidence, explanation, model)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (article_id) DO UPDATE SET
	leaning = EXCLUDED.leaning,
	score = EXCLUDED.score,
	confidence = EXCLUDED.confidence,
	explanation = EXCLUDED.explanation,
	model = EXCLUDED.model,
	updated_at = now()
`
	if _, err := p.Exec(ctx, q,
		params.ArticleID, params.Leaning, params.Score, params.Confidence, params.Explanation, params.Model,
	); err != nil {
		return fmt.Errorf("upsert bias score for article %d: %w", params.ArticleID, err)
	}
	return nil
}

// ArticleDetail is an article joined with its source and optional leaning.
type ArticleDetail struct {
	ArticleID   int64     `json:"article_id"`
	ArticleUUID string    `json:"article_uuid"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
	Lang        string    `json:"lang"`
	SourceID    int64     `json:"source_id"`
	SourceName  string    `json:"source_name"`
	SourceBias  string    `json:"source_bias"`
	Leaning     *string   `json:"leaning,omitempty"`
	Score       *int      `json:"score,omitempty"`
	Confidence  *int      `json:"confidence,omitempty"`
	Explanation *string   `json:"explanation,omitempty"`
}

// HasBiasScore reports whether a leaning record was joined.
func (a ArticleDetail) HasBiasScore() bool {
	return a.Leaning != nil && a.Score != nil && a.Confidence != nil
}

// FindArticleByURL returns the newest article stored under url or ErrNoRows.
func (p *Pool) FindArticleByURL(ctx context.Context, articleURL string) (int64, error) {
	const q = `SELECT article_id FROM news.articles WHERE url = $1 ORDER BY article_id DESC LIMIT 1`

	var articleID int64
	if err := p.QueryRow(ctx, q, strings.TrimSpace(articleURL)).Scan(&articleID); err != nil {
		return 0, err
	}
	return articleID, nil
}

// GetArticleDetail loads one article with its source and leaning.
func (p *Pool) GetArticleDetail(ctx context.Context, articleID int64) (ArticleDetail, error) {
	const q = `
SELECT
	a.article_id, a.article_uuid::text, a.title, a.url, a.summary, a.published_at, a.lang,
	s.source_id, s.name, s.bias_label,
	b.leaning, b.score, b.confidence, b.explanation
FROM news.articles a
JOIN news.sources s ON s.source_id = a.source_id
LEFT JOIN news.bias_scores b ON b.article_id = a.article_id
WHERE a.article_id = $1
`
	var d ArticleDetail
	err := p.QueryRow(ctx, q, articleID).Scan(
		&d.ArticleID, &d.ArticleUUID, &d.Title, &d.URL, &d.Summary, &d.PublishedAt, &d.Lang,
		&d.SourceID, &d.SourceName, &d.SourceBias,
		&d.Leaning, &d.Score, &d.Confidence, &d.Explanation,
	)
	if err != nil {
		return ArticleDetail{}, err
	}
	return d, nil
}
