package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/analyze"
	"horse.fit/median/internal/classify"
	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/config"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/discovery"
	"horse.fit/median/internal/feed"
	"horse.fit/median/internal/language"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/ranker"
	"horse.fit/median/internal/reader"
	"horse.fit/median/internal/relevance"
	"horse.fit/median/internal/scheduler"
)

// environment is the config, logger and pool every database command needs.
type environment struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func openEnvironment(connectTimeout time.Duration, envLoader *cli.EnvLoader) (*environment, error) {
	envLoader.LoadOrWarn(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &environment{cfg: cfg, logger: logger, pool: pool}, nil
}

func (e *environment) Close() {
	if e == nil || e.pool == nil {
		return
	}
	if err := e.pool.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("close database pool")
	}
}

// pipelines holds the wired run-time components. discovery and cycle are
// nil when no oracle API key is configured.
type pipelines struct {
	metrics   *metrics.Metrics
	discovery *discovery.Pipeline
	ranker    *ranker.Ranker
	analyzer  *analyze.Analyzer
	cycle     *scheduler.Scheduler
}

func buildPipelines(env *environment, m *metrics.Metrics) (*pipelines, error) {
	cfg := env.cfg
	logger := env.logger

	var (
		client     *oracle.Client
		biasOracle classify.BiasOracle
		model      string
	)
	if cfg.RequireOpenAI() == nil {
		c, err := oracle.NewClient(oracle.Options{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Timeout:        cfg.OpenAITimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build oracle client: %w", err)
		}
		client = c
		biasOracle = c
		model = c.ChatModel()
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; discovery disabled and bias classification uses source fallback")
	}

	classifier := classify.New(biasOracle, model, logger)
	detector := &language.Detector{}

	out := &pipelines{
		metrics: m,
		ranker: ranker.New(env.pool, ranker.Options{
			ActiveWindow: cfg.RankerActiveWindow,
			Retention:    cfg.RankerRetention,
			TopicLimit:   cfg.RankerTopicLimit,
			Metrics:      m,
		}, logger),
		analyzer: analyze.New(env.pool, classifier, analyze.Options{
			Fetch: func(ctx context.Context, pageURL string) (*reader.Page, error) {
				return reader.FetchPage(ctx, pageURL, reader.FetchOptions{Timeout: cfg.DiscoveryPageTimeout})
			},
			Language: detector,
			Metrics:  m,
		}, logger),
	}

	if client == nil {
		return out, nil
	}

	httpClient := &http.Client{Timeout: cfg.DiscoveryPageTimeout}
	items, err := feed.NewClient(cfg.NewsSearchURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build news search client: %w", err)
	}
	searcher := feed.NewSearcher(
		items,
		feed.NewResolver(cfg.RedirectHostList(), cfg.DiscoveryResolveTimeout, nil),
		relevance.NewScorer(client, cfg.DiscoveryRelevanceThreshold),
		feed.Options{
			QueryDelay:    cfg.DiscoveryQueryDelay,
			RecencyWindow: cfg.DiscoveryRecencyWindow,
		},
		logger,
	)

	out.discovery = discovery.NewPipeline(env.pool, client, searcher, classifier, discovery.Options{
		Summarizer: classify.NewSummarizer(cfg.DiscoveryPageTimeout),
		Language:   detector,
		Metrics:    m,
	}, logger)
	out.cycle = scheduler.New(out.discovery, out.ranker, logger)
	return out, nil
}

func timeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
