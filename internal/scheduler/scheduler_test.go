package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/discovery"
	"horse.fit/median/internal/ranker"
)

type stubDiscoverer struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (d *stubDiscoverer) Run(context.Context) (discovery.Result, error) {
	d.calls.Add(1)
	if d.started != nil {
		close(d.started)
	}
	if d.block != nil {
		<-d.block
	}
	return discovery.Result{TopicsCreated: 2}, d.err
}

type stubRebuilder struct {
	calls atomic.Int32
	err   error
}

func (r *stubRebuilder) Rebuild(context.Context) (ranker.Result, error) {
	r.calls.Add(1)
	return ranker.Result{HomepageEntriesCreated: 3}, r.err
}

func TestRunOnceRunsBothStages(t *testing.T) {
	t.Parallel()

	discover := &stubDiscoverer{}
	rebuild := &stubRebuilder{}
	s := New(discover, rebuild, zerolog.Nop())

	outcome, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if discover.calls.Load() != 1 || rebuild.calls.Load() != 1 {
		t.Fatalf("expected one call per stage, got %d/%d", discover.calls.Load(), rebuild.calls.Load())
	}
	if outcome.Discovery.TopicsCreated != 2 || outcome.Ranker.HomepageEntriesCreated != 3 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestRunOnceRebuildsAfterDiscoveryFailure(t *testing.T) {
	t.Parallel()

	discover := &stubDiscoverer{err: errors.New("oracle down")}
	rebuild := &stubRebuilder{}
	s := New(discover, rebuild, zerolog.Nop())

	outcome, err := s.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "oracle down") {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if rebuild.calls.Load() != 1 {
		t.Fatalf("expected rebuild to run after failed discovery")
	}
	if outcome.DiscoveryErr == "" || outcome.RankerErr != "" {
		t.Fatalf("unexpected outcome errors: %+v", outcome)
	}
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	discover := &stubDiscoverer{block: make(chan struct{}), started: make(chan struct{})}
	rebuild := &stubRebuilder{}
	s := New(discover, rebuild, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-discover.started

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(discover.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if discover.calls.Load() != 1 {
		t.Fatalf("expected skipped run not to call discovery, got %d calls", discover.calls.Load())
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(&stubDiscoverer{}, &stubRebuilder{}, zerolog.Nop())
	first, err := s.Setup("0 6,18 * * *")
	if err != nil || !first {
		t.Fatalf("first Setup = %v, %v", first, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	second, err := s.Setup("*/5 * * * *")
	if err != nil || second {
		t.Fatalf("second Setup = %v, %v", second, err)
	}

	next, ok := s.NextRun()
	if !ok {
		t.Fatalf("expected next run after setup")
	}
	if hour := next.UTC().Hour(); hour != 6 && hour != 18 {
		t.Fatalf("second Setup must not replace the schedule, next run at %s", next)
	}
}

func TestSetupRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := New(&stubDiscoverer{}, &stubRebuilder{}, zerolog.Nop())
	if _, err := s.Setup("every day"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := s.Setup(" "); err == nil {
		t.Fatalf("expected empty schedule error")
	}
	if _, ok := s.NextRun(); ok {
		t.Fatalf("failed setup must leave scheduler unconfigured")
	}
	if err := s.Stop(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
