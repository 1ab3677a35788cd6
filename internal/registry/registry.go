// Package registry loads the YAML source registry and writes it to the store.
package registry

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/language"
	"horse.fit/median/internal/perspective"
)

const defaultCountry = "US"

//go:embed seed.yaml
var seedFile []byte

// Entry is one source as written in the registry file.
type Entry struct {
	Name      string   `yaml:"name"`
	HomeURL   string   `yaml:"home_url"`
	RSSURL    string   `yaml:"rss_url"`
	Bias      string   `yaml:"bias"`
	Authority *float64 `yaml:"authority"`
	Country   string   `yaml:"country"`
	Language  string   `yaml:"language"`
	Active    *bool    `yaml:"active"`
}

type file struct {
	Sources []Entry `yaml:"sources"`
}

type Store interface {
	UpsertSource(ctx context.Context, params db.UpsertSourceParams) (db.Source, bool, error)
}

type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Seed returns the built-in registry.
func Seed() ([]db.UpsertSourceParams, error) {
	return Parse(seedFile)
}

func LoadFile(path string) ([]db.UpsertSourceParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	params, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return params, nil
}

// Parse decodes and validates a registry document. Every invalid entry is
// reported; nothing is returned unless all entries pass.
func Parse(raw []byte) ([]db.UpsertSourceParams, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)

	var doc file
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("source registry has no sources")
	}

	var (
		params []db.UpsertSourceParams
		errs   []error
		seen   = make(map[string]int, len(doc.Sources))
	)
	for i, entry := range doc.Sources {
		p, err := entry.params()
		if err != nil {
			errs = append(errs, fmt.Errorf("source %d (%s): %w", i+1, entry.Name, err))
			continue
		}
		key := strings.ToLower(p.HomeURL)
		if first, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("source %d (%s): home_url duplicates source %d", i+1, entry.Name, first))
			continue
		}
		seen[key] = i + 1
		params = append(params, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return params, nil
}

func (e Entry) params() (db.UpsertSourceParams, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return db.UpsertSourceParams{}, fmt.Errorf("name is required")
	}

	home, err := absoluteURL(e.HomeURL)
	if err != nil {
		return db.UpsertSourceParams{}, fmt.Errorf("home_url: %w", err)
	}

	var rss *string
	if strings.TrimSpace(e.RSSURL) != "" {
		value, err := absoluteURL(e.RSSURL)
		if err != nil {
			return db.UpsertSourceParams{}, fmt.Errorf("rss_url: %w", err)
		}
		rss = &value
	}

	bias := perspective.LabelCenter
	if strings.TrimSpace(e.Bias) != "" {
		label, ok := perspective.NormalizeLabel(e.Bias)
		if !ok {
			return db.UpsertSourceParams{}, fmt.Errorf("bias %q must be one of %s", e.Bias, strings.Join(perspective.Labels(), ", "))
		}
		bias = label
	}

	authority := 0.5
	if e.Authority != nil {
		authority = *e.Authority
		if math.IsNaN(authority) || authority < 0 || authority > 1 {
			return db.UpsertSourceParams{}, fmt.Errorf("authority %v must be between 0 and 1", authority)
		}
	}

	country := strings.ToUpper(strings.TrimSpace(e.Country))
	if country == "" {
		country = defaultCountry
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return db.UpsertSourceParams{
		Name:           name,
		HomeURL:        home,
		RSSURL:         rss,
		BiasLabel:      bias,
		AuthorityScore: authority,
		Country:        country,
		Language:       language.CodeOr(e.Language, language.Default),
		Active:         active,
	}, nil
}

func absoluteURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%q must use http or https", trimmed)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%q has no host", trimmed)
	}
	return strings.TrimSuffix(parsed.String(), "/"), nil
}

// Import upserts params by home URL in file order and stops at the first
// store error.
func Import(ctx context.Context, store Store, params []db.UpsertSourceParams, logger zerolog.Logger) (ImportResult, error) {
	var result ImportResult
	for _, p := range params {
		source, created, err := store.UpsertSource(ctx, p)
		if err != nil {
			return result, fmt.Errorf("upsert source %q: %w", p.Name, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		logger.Debug().
			Int64("source_id", source.SourceID).
			Str("name", source.Name).
			Bool("created", created).
			Msg("source registered")
	}
	logger.Info().Int("created", result.Created).Int("updated", result.Updated).Msg("source registry imported")
	return result, nil
}
