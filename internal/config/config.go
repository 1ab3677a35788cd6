package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// SearchQueryPlaceholder marks where the URL-escaped query goes in NEWS_SEARCH_URL.
const SearchQueryPlaceholder = "{query}"

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"MEDIAN_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"MEDIAN_DB_MAX_CONNS" default:"8"`

	OpenAIAPIKey         string        `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL        string        `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIChatModel      string        `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4-turbo-preview"`
	OpenAIEmbeddingModel string        `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	OpenAITimeout        time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`

	NewsSearchURL           string `envconfig:"NEWS_SEARCH_URL" default:"https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en"`
	NewsSearchRedirectHosts string `envconfig:"NEWS_SEARCH_REDIRECT_HOSTS" default:"news.google.com"`

	DiscoveryQueryDelay         time.Duration `envconfig:"DISCOVERY_QUERY_DELAY" default:"500ms"`
	DiscoveryRecencyWindow      time.Duration `envconfig:"DISCOVERY_RECENCY_WINDOW" default:"72h"`
	DiscoveryRelevanceThreshold float64       `envconfig:"DISCOVERY_RELEVANCE_THRESHOLD" default:"0.70"`
	DiscoveryResolveTimeout     time.Duration `envconfig:"DISCOVERY_RESOLVE_TIMEOUT" default:"3s"`
	DiscoveryPageTimeout        time.Duration `envconfig:"DISCOVERY_PAGE_TIMEOUT" default:"5s"`

	RankerActiveWindow time.Duration `envconfig:"RANKER_ACTIVE_WINDOW" default:"24h"`
	RankerRetention    time.Duration `envconfig:"RANKER_RETENTION" default:"48h"`
	RankerTopicLimit   int           `envconfig:"RANKER_TOPIC_LIMIT" default:"100"`

	CronSecret   string `envconfig:"CRON_SECRET" default:"local_dev_secret"`
	EnableCron   bool   `envconfig:"ENABLE_CRON" default:"false"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 6,18 * * *"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("MEDIAN_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("MEDIAN_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("MEDIAN_DB_MIN_CONNS (%d) cannot exceed MEDIAN_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.OpenAIChatModel) == "" {
		return fmt.Errorf("OPENAI_CHAT_MODEL is required")
	}
	if strings.TrimSpace(c.OpenAIEmbeddingModel) == "" {
		return fmt.Errorf("OPENAI_EMBEDDING_MODEL is required")
	}
	if c.OpenAITimeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be > 0")
	}
	if !strings.Contains(c.NewsSearchURL, SearchQueryPlaceholder) {
		return fmt.Errorf("NEWS_SEARCH_URL must contain %s", SearchQueryPlaceholder)
	}
	if c.DiscoveryQueryDelay < 0 {
		return fmt.Errorf("DISCOVERY_QUERY_DELAY must be >= 0")
	}
	if c.DiscoveryRecencyWindow <= 0 {
		return fmt.Errorf("DISCOVERY_RECENCY_WINDOW must be > 0")
	}
	if c.DiscoveryRelevanceThreshold < 0 || c.DiscoveryRelevanceThreshold > 1 {
		return fmt.Errorf("DISCOVERY_RELEVANCE_THRESHOLD must be between 0 and 1")
	}
	if c.DiscoveryResolveTimeout <= 0 {
		return fmt.Errorf("DISCOVERY_RESOLVE_TIMEOUT must be > 0")
	}
	if c.DiscoveryPageTimeout <= 0 {
		return fmt.Errorf("DISCOVERY_PAGE_TIMEOUT must be > 0")
	}
	if c.RankerActiveWindow <= 0 {
		return fmt.Errorf("RANKER_ACTIVE_WINDOW must be > 0")
	}
	if c.RankerRetention <= 0 {
		return fmt.Errorf("RANKER_RETENTION must be > 0")
	}
	if c.RankerTopicLimit < 1 {
		return fmt.Errorf("RANKER_TOPIC_LIMIT must be >= 1")
	}
	if strings.TrimSpace(c.CronSecret) == "" {
		return fmt.Errorf("CRON_SECRET must not be empty")
	}
	if c.EnableCron && strings.TrimSpace(c.CronSchedule) == "" {
		return fmt.Errorf("CRON_SCHEDULE is required when ENABLE_CRON is set")
	}
	return nil
}

// RequireOpenAI reports whether oracle-backed commands can run.
func (c *Config) RequireOpenAI() error {
	if c == nil || strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func (c *Config) RedirectHostList() []string {
	if c == nil {
		return nil
	}
	return splitList(strings.ToLower(c.NewsSearchRedirectHosts))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
