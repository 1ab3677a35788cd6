package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UpsertSourceParams describes one publication keyed by its home URL.
type UpsertSourceParams struct {
	Name           string
	HomeURL        string
	RSSURL         *string
	BiasLabel      string
	AuthorityScore float64
	Country        string
	Language       string
	Active         bool
}

// ListActiveSources returns the source registry read path used by discovery.
func (p *Pool) ListActiveSources(ctx context.Context) ([]Source, error) {
	return p.ListSources(ctx, true)
}

func (p *Pool) ListSources(ctx context.Context, activeOnly bool) ([]Source, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	query := p.gdb.WithContext(ctx).Model(&Source{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var sources []Source
	if err := query.Order("source_id ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// FindSourceByDomain returns the first active source whose home or feed URL
// mentions domain.
func (p *Pool) FindSourceByDomain(ctx context.Context, domain string) (Source, error) {
	trimmed := strings.ToLower(strings.TrimSpace(domain))
	if trimmed == "" {
		return Source{}, fmt.Errorf("domain is required")
	}

	const q = `
SELECT source_id, source_uuid::text, name, home_url, rss_url, bias_label, authority_score,
	country, language, active, created_at, updated_at
FROM news.sources
WHERE active
  AND (lower(home_url) LIKE '%' || $1 || '%' OR lower(COALESCE(rss_url, '')) LIKE '%' || $1 || '%')
ORDER BY source_id ASC
LIMIT 1
`
	var s Source
	err := p.QueryRow(ctx, q, trimmed).Scan(
		&s.SourceID, &s.SourceUUID, &s.Name, &s.HomeURL, &s.RSSURL, &s.BiasLabel, &s.AuthorityScore,
		&s.Country, &s.Language, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return Source{}, err
	}
	return s, nil
}

// UpsertSource inserts or refreshes a source by home URL. created reports
// whether a new row was written.
func (p *Pool) UpsertSource(ctx context.Context, params UpsertSourceParams) (Source, bool, error) {
	return p.writeSource(ctx, params, true)
}

// EnsureSource inserts a source unless one with the same home URL exists, in
// which case the stored row is returned untouched.
func (p *Pool) EnsureSource(ctx context.Context, params UpsertSourceParams) (Source, bool, error) {
	return p.writeSource(ctx, params, false)
}

func (p *Pool) writeSource(ctx context.Context, params UpsertSourceParams, overwrite bool) (Source, bool, error) {
	homeURL := strings.TrimSpace(params.HomeURL)
	if homeURL == "" {
		return Source{}, false, fmt.Errorf("home URL is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Source{}, false, fmt.Errorf("source name is required")
	}

	conflict := `DO UPDATE SET updated_at = news.sources.updated_at`
	if overwrite {
		conflict = `DO UPDATE SET
	name = EXCLUDED.name,
	rss_url = EXCLUDED.rss_url,
	bias_label = EXCLUDED.bias_label,
	authority_score = EXCLUDED.authority_score,
	country = EXCLUDED.country,
	language = EXCLUDED.language,
	active = EXCLUDED.active,
	updated_at = now()`
	}

	q := `
INSERT INTO news.sources (
	source_uuid, name, home_url, rss_url, bias_label, authority_score, country, language, active
) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (home_url) ` + conflict + `
RETURNING source_id, source_uuid::text, name, home_url, rss_url, bias_label, authority_score,
	country, language, active, created_at, updated_at, (xmax = 0) AS inserted
`
	var (
		s        Source
		inserted bool
	)
	err := p.QueryRow(ctx, q,
		uuid.NewString(), name, homeURL, params.RSSURL, params.BiasLabel, params.AuthorityScore,
		defaultString(params.Country, "US"), defaultString(params.Language, "en"), params.Active,
	).Scan(
		&s.SourceID, &s.SourceUUID, &s.Name, &s.HomeURL, &s.RSSURL, &s.BiasLabel, &s.AuthorityScore,
		&s.Country, &s.Language, &s.Active, &s.CreatedAt, &s.UpdatedAt, &inserted,
	)
	if err != nil {
		return Source{}, false, fmt.Errorf("upsert source %q: %w", homeURL, err)
	}
	return s, inserted, nil
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
