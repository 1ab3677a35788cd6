package db

import (
	"context"
	"fmt"
)

// WipeCounts reports rows removed (or that would be removed) per table.
type WipeCounts struct {
	TopicMembers   int64 `json:"topic_members"`
	BiasScores     int64 `json:"bias_scores"`
	Topics         int64 `json:"topics"`
	HomepageTopics int64 `json:"homepage_topics"`
	Articles       int64 `json:"articles"`
}

// Total sums every table.
func (c WipeCounts) Total() int64 {
	return c.TopicMembers + c.BiasScores + c.Topics + c.HomepageTopics + c.Articles
}

// wipeOrder lists derived tables before the rows they reference. Sources are
// registry data and survive a wipe.
var wipeOrder = []string{
	"news.topic_members",
	"news.bias_scores",
	"news.topics",
	"news.homepage_topics",
	"news.articles",
}

// PreviewWipe counts the rows WipeIngestedData would delete.
func (p *Pool) PreviewWipe(ctx context.Context) (WipeCounts, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM news.topic_members),
	(SELECT COUNT(*) FROM news.bias_scores),
	(SELECT COUNT(*) FROM news.topics),
	(SELECT COUNT(*) FROM news.homepage_topics),
	(SELECT COUNT(*) FROM news.articles)
`
	var c WipeCounts
	if err := p.QueryRow(ctx, q).Scan(&c.TopicMembers, &c.BiasScores, &c.Topics, &c.HomepageTopics, &c.Articles); err != nil {
		return WipeCounts{}, fmt.Errorf("preview wipe: %w", err)
	}
	return c, nil
}

// WipeIngestedData deletes all discovered data in one transaction.
func (p *Pool) WipeIngestedData(ctx context.Context) (WipeCounts, error) {
	var c WipeCounts
	targets := []*int64{&c.TopicMembers, &c.BiasScores, &c.Topics, &c.HomepageTopics, &c.Articles}

	err := p.WithTx(ctx, func(tx Tx) error {
		for i, table := range wipeOrder {
			tag, err := tx.Exec(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
			*targets[i] = tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return WipeCounts{}, err
	}
	return c, nil
}
