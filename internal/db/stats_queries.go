package db

import (
	"context"
	"fmt"
	"time"
)

// SideCount is a per-side article count.
type SideCount struct {
	Side     string `json:"side"`
	Articles int64  `json:"articles"`
}

// StatsTotals stores table-level totals.
type StatsTotals struct {
	Sources       int64 `json:"sources"`
	ActiveSources int64 `json:"active_sources"`
	Articles      int64 `json:"articles"`
	BiasScores    int64 `json:"bias_scores"`
	Topics        int64 `json:"topics"`
	TopicMembers  int64 `json:"topic_members"`
	HomepageRows  int64 `json:"homepage_rows"`
}

// PipelineThroughput stores daily counters.
type PipelineThroughput struct {
	ArticlesIngestedToday int64 `json:"articles_ingested_today"`
	TopicsCreatedToday    int64 `json:"topics_created_today"`
	PendingNotClassified  int64 `json:"pending_not_classified"`
}

// PipelineStats is the read model returned by the stats command.
type PipelineStats struct {
	Day        string             `json:"day"`
	Totals     StatsTotals        `json:"totals"`
	Sides      []SideCount        `json:"sides"`
	Throughput PipelineThroughput `json:"throughput"`
	LastBuilt  *time.Time         `json:"last_built_at,omitempty"`
}

// QueryPipelineStats returns totals, per-side membership, and daily throughput.
func (p *Pool) QueryPipelineStats(ctx context.Context, dayStart, dayEnd time.Time) (*PipelineStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &PipelineStats{
		Day:   startUTC.Format("2006-01-02"),
		Sides: make([]SideCount, 0, 3),
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM news.sources) AS sources,
	(SELECT COUNT(*) FROM news.sources WHERE active) AS active_sources,
	(SELECT COUNT(*) FROM news.articles) AS articles,
	(SELECT COUNT(*) FROM news.bias_scores) AS bias_scores,
	(SELECT COUNT(*) FROM news.topics) AS topics,
	(SELECT COUNT(*) FROM news.topic_members) AS topic_members,
	(SELECT COUNT(*) FROM news.homepage_topics) AS homepage_rows,
	(SELECT MAX(built_at) FROM news.homepage_topics) AS last_built_at
`
	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.Totals.Sources,
		&stats.Totals.ActiveSources,
		&stats.Totals.Articles,
		&stats.Totals.BiasScores,
		&stats.Totals.Topics,
		&stats.Totals.TopicMembers,
		&stats.Totals.HomepageRows,
		&stats.LastBuilt,
	); err != nil {
		return nil, fmt.Errorf("query stats totals: %w", err)
	}

	const sidesQuery = `
SELECT m.side_label, COUNT(*)::BIGINT
FROM news.topic_members m
GROUP BY m.side_label
ORDER BY 1
`
	rows, err := p.Query(ctx, sidesQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats side counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row SideCount
		if err := rows.Scan(&row.Side, &row.Articles); err != nil {
			return nil, fmt.Errorf("scan stats side row: %w", err)
		}
		stats.Sides = append(stats.Sides, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats side rows: %w", err)
	}

	const throughputQuery = `
SELECT
	(SELECT COUNT(*) FROM news.articles a WHERE a.created_at >= $1 AND a.created_at < $2) AS articles_ingested_today,
	(SELECT COUNT(*) FROM news.topics t WHERE t.first_seen_at >= $1 AND t.first_seen_at < $2) AS topics_created_today,
	(SELECT COUNT(*) FROM news.articles a WHERE NOT EXISTS (SELECT 1 FROM news.bias_scores b WHERE b.article_id = a.article_id)) AS pending_not_classified
`
	if err := p.QueryRow(ctx, throughputQuery, startUTC, endUTC).Scan(
		&stats.Throughput.ArticlesIngestedToday,
		&stats.Throughput.TopicsCreatedToday,
		&stats.Throughput.PendingNotClassified,
	); err != nil {
		return nil, fmt.Errorf("query stats throughput: %w", err)
	}

	return stats, nil
}
