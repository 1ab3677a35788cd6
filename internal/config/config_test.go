package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:                 "local",
		LogLevel:                    "info",
		DatabaseURL:                 "postgres://localhost/median",
		DBMinConns:                  1,
		DBMaxConns:                  8,
		OpenAIChatModel:             "gpt-4-turbo-preview",
		OpenAIEmbeddingModel:        "text-embedding-3-small",
		OpenAITimeout:               time.Minute,
		NewsSearchURL:               "https://news.example/rss?q={query}",
		DiscoveryQueryDelay:         500 * time.Millisecond,
		DiscoveryRecencyWindow:      72 * time.Hour,
		DiscoveryRelevanceThreshold: 0.7,
		DiscoveryResolveTimeout:     3 * time.Second,
		DiscoveryPageTimeout:        5 * time.Second,
		RankerActiveWindow:          24 * time.Hour,
		RankerRetention:             48 * time.Hour,
		RankerTopicLimit:            100,
		CronSecret:                  "local_dev_secret",
		CronSchedule:                "0 6,18 * * *",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"conns", func(c *Config) { c.DBMinConns = 9 }, "cannot exceed"},
		{"threshold", func(c *Config) { c.DiscoveryRelevanceThreshold = 1.5 }, "DISCOVERY_RELEVANCE_THRESHOLD"},
		{"search url", func(c *Config) { c.NewsSearchURL = "https://news.example/rss" }, "{query}"},
		{"secret", func(c *Config) { c.CronSecret = " " }, "CRON_SECRET"},
		{"cron schedule", func(c *Config) { c.EnableCron = true; c.CronSchedule = "" }, "CRON_SCHEDULE"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRedirectHostListLowercasesAndDedupes(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.NewsSearchRedirectHosts = " News.Google.com,news.google.com, ,feeds.example "
	hosts := cfg.RedirectHostList()
	if len(hosts) != 2 {
		t.Fatalf("unexpected host count %d: %v", len(hosts), hosts)
	}
	if hosts[0] != "news.google.com" || hosts[1] != "feeds.example" {
		t.Fatalf("unexpected hosts: %v", hosts)
	}
}
