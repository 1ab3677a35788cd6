// Package scheduler runs the discovery pipeline followed by the homepage
// rebuild on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"horse.fit/median/internal/discovery"
	"horse.fit/median/internal/globaltime"
	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/ranker"
)

var (
	ErrRunInProgress = errors.New("pipeline run already in progress")
	ErrNotConfigured = errors.New("scheduler is not set up")
)

type Discoverer interface {
	Run(ctx context.Context) (discovery.Result, error)
}

type Rebuilder interface {
	Rebuild(ctx context.Context) (ranker.Result, error)
}

// Outcome is the combined result of one scheduled cycle. Errors from either
// stage are reported separately; a failed discovery still triggers the rebuild.
type Outcome struct {
	Discovery    discovery.Result `json:"discovery"`
	DiscoveryErr string           `json:"discoveryError,omitempty"`
	Ranker       ranker.Result    `json:"ranker"`
	RankerErr    string           `json:"rankerError,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
}

func (o Outcome) Err() error {
	var errs []error
	if o.DiscoveryErr != "" {
		errs = append(errs, fmt.Errorf("discovery: %s", o.DiscoveryErr))
	}
	if o.RankerErr != "" {
		errs = append(errs, fmt.Errorf("ranker: %s", o.RankerErr))
	}
	return errors.Join(errs...)
}

type Scheduler struct {
	discover Discoverer
	rebuild  Rebuilder
	now      func() time.Time
	logger   zerolog.Logger

	setupMu sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	started bool

	// running is held for the whole cycle; TryLock failing means skip.
	running sync.Mutex
}

func New(discover Discoverer, rebuild Rebuilder, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		discover: discover,
		rebuild:  rebuild,
		now:      globaltime.UTC,
		logger:   logging.Component(logger, "scheduler"),
	}
}

// Setup registers the cycle under schedule and starts the cron runner. It
// returns false without touching the schedule when called a second time.
func (s *Scheduler) Setup(schedule string) (bool, error) {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	if s.started {
		s.logger.Debug().Msg("scheduler already set up")
		return false, nil
	}

	spec := strings.TrimSpace(schedule)
	if spec == "" {
		return false, fmt.Errorf("cron schedule is required")
	}

	runner := cron.New(cron.WithLocation(time.UTC))
	entry, err := runner.AddFunc(spec, s.tick)
	if err != nil {
		return false, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}
	runner.Start()

	s.cron = runner
	s.entry = entry
	s.started = true
	s.logger.Info().Str("schedule", spec).Time("next_run", runner.Entry(entry).Next).Msg("scheduler started")
	return true, nil
}

// Stop halts the cron runner and waits for a running cycle or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.setupMu.Lock()
	runner := s.cron
	s.setupMu.Unlock()

	if runner == nil {
		return ErrNotConfigured
	}

	done := runner.Stop().Done()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun reports when the cycle fires next. ok is false before Setup.
func (s *Scheduler) NextRun() (next time.Time, ok bool) {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	if s.cron == nil {
		return time.Time{}, false
	}
	return s.cron.Entry(s.entry).Next, true
}

func (s *Scheduler) tick() {
	outcome, err := s.RunOnce(context.Background())
	if errors.Is(err, ErrRunInProgress) {
		s.logger.Warn().Msg("previous run still in progress; skipping tick")
		return
	}

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.
		Int("topics_created", outcome.Discovery.TopicsCreated).
		Int("articles_inserted", outcome.Discovery.ArticlesInserted).
		Int("homepage_entries", outcome.Ranker.HomepageEntriesCreated).
		Dur("duration", outcome.Duration).
		Msg("scheduled run finished")
}

// RunOnce executes discovery then the rebuild. Concurrent callers get
// ErrRunInProgress instead of queueing.
func (s *Scheduler) RunOnce(ctx context.Context) (Outcome, error) {
	if !s.running.TryLock() {
		return Outcome{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	outcome := Outcome{StartedAt: s.now()}

	found, err := s.discover.Run(ctx)
	outcome.Discovery = found
	if err != nil {
		outcome.DiscoveryErr = err.Error()
	}

	built, err := s.rebuild.Rebuild(ctx)
	outcome.Ranker = built
	if err != nil {
		outcome.RankerErr = err.Error()
	}

	outcome.Duration = s.now().Sub(outcome.StartedAt)
	return outcome, outcome.Err()
}
