package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/median/internal/analyze"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/discovery"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/ranker"
	"horse.fit/median/internal/scheduler"
)

const (
	defaultHomepageLimit = 50
	maxHomepageLimit     = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CronSecret      string
	AllowedOrigins  []string
}

// Store is the read and wipe surface the API needs from the database.
type Store interface {
	Ping(ctx context.Context) error
	QueryPipelineStats(ctx context.Context, dayStart, dayEnd time.Time) (*db.PipelineStats, error)
	ListHomepage(ctx context.Context, limit int) ([]db.HomepageEntry, error)
	GetTopicByUUID(ctx context.Context, topicUUID string) (db.TopicDetail, error)
	ListTopicMemberArticles(ctx context.Context, topicID int64) ([]db.MemberArticle, error)
	Search(ctx context.Context, term string, limit int) (*db.SearchResults, error)
	WipeIngestedData(ctx context.Context) (db.WipeCounts, error)
}

type Discoverer interface {
	Run(ctx context.Context) (discovery.Result, error)
}

type Rebuilder interface {
	Rebuild(ctx context.Context) (ranker.Result, error)
}

type CycleRunner interface {
	RunOnce(ctx context.Context) (scheduler.Outcome, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) (*analyze.Analysis, error)
}

// Deps are the collaborators behind the routes. Any pipeline left nil makes
// its trigger route answer 503.
type Deps struct {
	Store     Store
	Discovery Discoverer
	Ranker    Rebuilder
	Cycle     CycleRunner
	Analyzer  Analyzer
	Metrics   *metrics.Metrics
}

type Server struct {
	store     Store
	discovery Discoverer
	ranker    Rebuilder
	cycle     CycleRunner
	analyzer  Analyzer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	opts      Options
	now       func() time.Time
}

func NewServer(deps Deps, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	// Discovery runs synchronously inside the request.
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		store:     deps.Store,
		discovery: deps.Discovery,
		ranker:    deps.Ranker,
		cycle:     deps.Cycle,
		analyzer:  deps.Analyzer,
		metrics:   deps.Metrics,
		logger:    logging.Component(logger, "httpapi"),
		now:       globaltime.UTC,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CronSecret:      opts.CronSecret,
			AllowedOrigins:  origins,
		},
	}
}

// Handler builds the echo router with every route and middleware.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			msg := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				msg = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(msg)
			return nil
		},
	}))

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/homepage", s.handleHomepage)
	api.GET("/topics/:topic_uuid", s.handleTopicDetail)
	api.GET("/search", s.handleSearch)

	triggers := api.Group("", s.requireTriggerSecret())
	triggers.POST("/discover", s.handleDiscover)
	triggers.POST("/rebuild-homepage", s.handleRebuildHomepage)
	triggers.POST("/cron/discover-and-update", s.handleCycle)
	triggers.POST("/analyze", s.handleAnalyze)
	triggers.POST("/clear-all-data", s.handleClearAllData)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("median api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("median api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if !strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = c.String(status, message)
		return
	}
	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
