package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/analyze"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/discovery"
	"horse.fit/median/internal/metrics"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/perspective"
	"horse.fit/median/internal/ranker"
	"horse.fit/median/internal/scheduler"
)

const testSecret = "s3cret"

const topicUUID = "0b8e4a52-8f4a-4c7e-9b1e-5f0a9d2c1e11"

type fakeStore struct {
	pingErr    error
	homepage   []db.HomepageEntry
	topic      *db.TopicDetail
	members    []db.MemberArticle
	search     *db.SearchResults
	wiped      int
	lastLimit  int
	lastSearch string
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) QueryPipelineStats(_ context.Context, dayStart, _ time.Time) (*db.PipelineStats, error) {
	return &db.PipelineStats{Day: dayStart.Format("2006-01-02")}, nil
}

func (f *fakeStore) ListHomepage(_ context.Context, limit int) ([]db.HomepageEntry, error) {
	f.lastLimit = limit
	return f.homepage, nil
}

func (f *fakeStore) GetTopicByUUID(_ context.Context, id string) (db.TopicDetail, error) {
	if f.topic == nil || f.topic.TopicUUID != id {
		return db.TopicDetail{}, db.ErrNoRows
	}
	return *f.topic, nil
}

func (f *fakeStore) ListTopicMemberArticles(context.Context, int64) ([]db.MemberArticle, error) {
	return f.members, nil
}

func (f *fakeStore) Search(_ context.Context, term string, _ int) (*db.SearchResults, error) {
	f.lastSearch = term
	if f.search == nil {
		return &db.SearchResults{Query: term}, nil
	}
	return f.search, nil
}

func (f *fakeStore) WipeIngestedData(context.Context) (db.WipeCounts, error) {
	f.wiped++
	return db.WipeCounts{Topics: 2, Articles: 5}, nil
}

type fakeDiscovery struct {
	result discovery.Result
	err    error
	calls  int
}

func (f *fakeDiscovery) Run(context.Context) (discovery.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeRanker struct{ result ranker.Result }

func (f *fakeRanker) Rebuild(context.Context) (ranker.Result, error) { return f.result, nil }

type fakeCycle struct{ err error }

func (f *fakeCycle) RunOnce(context.Context) (scheduler.Outcome, error) {
	return scheduler.Outcome{}, f.err
}

type fakeAnalyzer struct{ gotURL string }

func (f *fakeAnalyzer) Analyze(_ context.Context, rawURL string) (*analyze.Analysis, error) {
	f.gotURL = rawURL
	if !strings.HasPrefix(rawURL, "http") {
		return nil, analyze.ErrInvalidURL
	}
	return &analyze.Analysis{Bias: oracle.BiasClassification{Leaning: perspective.Right, Score: 70, Confidence: 80}}, nil
}

type testEnv struct {
	store     *fakeStore
	discovery *fakeDiscovery
	analyzer  *fakeAnalyzer
	server    *Server
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:     &fakeStore{},
		discovery: &fakeDiscovery{result: discovery.Result{TopicsDiscovered: 3, TopicsCreated: 2}},
		analyzer:  &fakeAnalyzer{},
	}
	env.server = NewServer(Deps{
		Store:     env.store,
		Discovery: env.discovery,
		Ranker:    &fakeRanker{result: ranker.Result{TopicsProcessed: 4, HomepageEntriesCreated: 4}},
		Cycle:     &fakeCycle{err: scheduler.ErrRunInProgress},
		Analyzer:  env.analyzer,
		Metrics:   metrics.New(),
	}, zerolog.Nop(), Options{CronSecret: testSecret})
	return env
}

func (env *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, jsendResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	var body jsendResponse
	if strings.HasPrefix(req.URL.Path, "/api/") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s response: %v (%s)", req.URL.Path, err, rec.Body.String())
		}
	}
	return rec, body
}

func authed(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testSecret)
	return req
}

func TestHealthReportsDatabaseState(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.store.pingErr = errors.New("down")
	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK || body.Status != "success" {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"database":"degraded"`) {
		t.Fatalf("expected degraded database, got %s", rec.Body.String())
	}
}

func TestHomepageValidatesLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/homepage?limit=0", nil))
	if rec.Code != http.StatusBadRequest || body.Status != "fail" {
		t.Fatalf("expected validation failure, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/homepage", nil))
	if rec.Code != http.StatusOK || env.store.lastLimit != defaultHomepageLimit {
		t.Fatalf("expected default limit, got %d limit=%d", rec.Code, env.store.lastLimit)
	}
}

func TestTopicDetailGroupsArticlesBySide(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.store.topic = &db.TopicDetail{ActiveTopic: db.ActiveTopic{TopicID: 1, TopicUUID: topicUUID, Title: "Budget"}}
	env.store.members = []db.MemberArticle{
		{ArticleID: 1, SideLabel: "Left"},
		{ArticleID: 2, SideLabel: "Right"},
		{ArticleID: 3, SideLabel: "Left"},
	}

	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/topics/"+topicUUID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Data topicDetailResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Coverage[perspective.Left] != 2 || payload.Data.Coverage[perspective.Right] != 1 || payload.Data.Coverage[perspective.Center] != 0 {
		t.Fatalf("unexpected coverage: %+v", payload.Data.Coverage)
	}
	if payload.Data.Articles[perspective.Center] == nil {
		t.Fatalf("empty sides should serialize as empty lists")
	}
}

func TestTopicDetailErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/topics/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad uuid, got %d", rec.Code)
	}
	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/topics/"+topicUUID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing topic, got %d", rec.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=+", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=budget", nil))
	if rec.Code != http.StatusOK || env.store.lastSearch != "budget" {
		t.Fatalf("unexpected search %d term=%q", rec.Code, env.store.lastSearch)
	}
}

func TestTriggersRequireSecret(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testSecret},
		{"wrong secret", "Bearer nope"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/discover", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec, _ := env.do(t, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
	if env.discovery.calls != 0 {
		t.Fatalf("unauthorized requests must not run discovery")
	}
}

func TestTriggersAllowLoopbackPeer(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discover", nil)
	req.RemoteAddr = "127.0.0.1:51234"
	rec, body := env.do(t, req)
	if rec.Code != http.StatusOK || body.Status != "success" {
		t.Fatalf("expected loopback bypass, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"topicsCreated":2`) {
		t.Fatalf("unexpected discovery payload: %s", rec.Body.String())
	}
}

func TestTriggersIgnoreSpoofedLocalHostHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clear-all-data", nil)
	req.RemoteAddr = "203.0.113.7:4444"
	req.Host = "localhost"
	rec, _ := env.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for remote peer, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.store.wiped != 0 {
		t.Fatalf("remote request without secret wiped data")
	}
}

func TestTriggersRequireSecretBehindProxy(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discover", nil)
	req.RemoteAddr = "127.0.0.1:51234"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	rec, _ := env.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for proxied request, got %d", rec.Code)
	}
	if env.discovery.calls != 0 {
		t.Fatalf("proxied request without secret ran discovery")
	}
}

func TestDiscoverFailureReturnsErrorWithCounts(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.discovery.err = errors.New("topic oracle unavailable")
	rec, body := env.do(t, authed(http.MethodPost, "/api/v1/discover", ""))
	if rec.Code != http.StatusInternalServerError || body.Status != "error" {
		t.Fatalf("expected error envelope, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(body.Message, "topic oracle unavailable") || body.Data == nil {
		t.Fatalf("expected message and partial counts, got %+v", body)
	}
}

func TestRebuildAndWipe(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, authed(http.MethodPost, "/api/v1/rebuild-homepage", ""))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"homepageEntriesCreated":4`) {
		t.Fatalf("unexpected rebuild response %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, authed(http.MethodPost, "/api/v1/clear-all-data", ""))
	if rec.Code != http.StatusOK || env.store.wiped != 1 || !strings.Contains(rec.Body.String(), `"total":7`) {
		t.Fatalf("unexpected wipe response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCycleReportsRunInProgress(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, authed(http.MethodPost, "/api/v1/cron/discover-and-update", ""))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, authed(http.MethodPost, "/api/v1/analyze", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing url, got %d", rec.Code)
	}
	rec, _ = env.do(t, authed(http.MethodPost, "/api/v1/analyze", `{"url":"ftp://x"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid url, got %d", rec.Code)
	}
	rec, _ = env.do(t, authed(http.MethodPost, "/api/v1/analyze", `{"url":"https://wire.example/a"}`))
	if rec.Code != http.StatusOK || env.analyzer.gotURL != "https://wire.example/a" {
		t.Fatalf("unexpected analyze response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}

func TestIsLoopbackPeer(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:8090":   true,
		"[::1]:8090":       true,
		"127.0.0.2:1":      true,
		"192.0.2.1:1234":   false,
		"localhost:8090":   false,
		"203.0.113.7:4444": false,
		"":                 false,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/discover", nil)
		req.RemoteAddr = addr
		if got := isLoopbackPeer(req); got != want {
			t.Fatalf("isLoopbackPeer(%q) = %v, want %v", addr, got, want)
		}
	}
}
